package scope

import (
	"reflect"
	"testing"
)

func TestUnrestricted(t *testing.T) {
	s := Unrestricted()

	if !s.IsUnrestricted() {
		t.Error("IsUnrestricted() = false, want true")
	}
	if s.IsEmpty() {
		t.Error("unrestricted scope should not be empty")
	}
	if !s.Allows(1) || !s.Allows(999999) {
		t.Error("unrestricted scope should allow any work area")
	}
	if s.IDs() != nil {
		t.Errorf("IDs() = %v, want nil for unrestricted", s.IDs())
	}
}

func TestRestricted(t *testing.T) {
	s := Restricted([]int64{7, 4})

	if s.IsUnrestricted() {
		t.Error("IsUnrestricted() = true, want false")
	}
	if s.IsEmpty() {
		t.Error("IsEmpty() = true, want false")
	}
	if !s.Allows(4) || !s.Allows(7) {
		t.Error("scope should allow assigned work areas")
	}
	if s.Allows(5) {
		t.Error("scope should deny unassigned work areas")
	}
	// IDsは昇順で返ること
	if got := s.IDs(); !reflect.DeepEqual(got, []int64{4, 7}) {
		t.Errorf("IDs() = %v, want [4 7]", got)
	}
}

func TestRestricted_Empty(t *testing.T) {
	// 空集合は「全拒否」であり「制約なし」と混同してはならない
	s := Restricted(nil)

	if s.IsUnrestricted() {
		t.Error("empty restricted scope must not be unrestricted")
	}
	if !s.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
	if s.Allows(1) {
		t.Error("empty scope should deny all work areas")
	}
	if got := s.IDs(); len(got) != 0 {
		t.Errorf("IDs() = %v, want empty", got)
	}
}

func TestRestricted_DeduplicatesIDs(t *testing.T) {
	s := Restricted([]int64{3, 3, 1})

	if got := s.IDs(); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("IDs() = %v, want [1 3]", got)
	}
}
