package core

import "testing"

func TestTierMax(t *testing.T) {
	if Epoch0.Max(Epoch2) != Epoch2 {
		t.Error("Max should return the higher tier regardless of receiver")
	}
	if Epoch2.Max(Epoch0) != Epoch2 {
		t.Error("Max should return the higher tier regardless of argument")
	}
	if Epoch1.Max(Epoch1) != Epoch1 {
		t.Error("Max of equal tiers should return that tier")
	}
}
