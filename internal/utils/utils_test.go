package utils

import "testing"

func TestNormalizeIdentifier(t *testing.T) {
	for _, test := range []struct {
		input, want string
	}{
		{"", ""},
		{"stage1/bn0", "stage1_bn0"},
		{"resnet.layer2.bn", "resnet_layer2_bn"},
		{"3conv_bn", "_3conv_bn"},
		{"already_valid_Name9", "already_valid_Name9"},
	} {
		if got := NormalizeIdentifier(test.input); got != test.want {
			t.Errorf("NormalizeIdentifier(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}
