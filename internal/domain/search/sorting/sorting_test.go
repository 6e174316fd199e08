package sorting

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/curator/internal/domain"
)

func TestNew_FirstIsCurrentByDefault(t *testing.T) {
	o, err := New(DefaultOptions(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Current().Field != "nr_views" {
		t.Errorf("Current() = %q", o.Current().Field)
	}
	if len(o.Available()) != 2 {
		t.Errorf("len(Available()) = %d", len(o.Available()))
	}
}

func TestNew_InitialFromQuery(t *testing.T) {
	o, err := New(DefaultOptions(), "avg_grade")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Current().Field != "avg_grade" {
		t.Errorf("Current() = %q", o.Current().Field)
	}
	av := o.Available()
	if av[0].Field != "nr_views" || av[1].Field != "nr_attempts" {
		t.Errorf("Available() = %v", av)
	}
}

func TestNew_Empty(t *testing.T) {
	if _, err := New(nil, ""); !errors.Is(err, domain.ErrInvalidSort) {
		t.Errorf("expected ErrInvalidSort, got %v", err)
	}
}

func TestSelect_SwapsCurrentAndAvailable(t *testing.T) {
	o, _ := New(DefaultOptions(), "")
	next, err := o.Select("nr_attempts")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if next.Current().Field != "nr_attempts" {
		t.Errorf("Current() = %q", next.Current().Field)
	}
	av := next.Available()
	if av[0].Field != "nr_views" || av[1].Field != "avg_grade" {
		t.Errorf("Available() = %v", av)
	}
	if o.Current().Field != "nr_views" {
		t.Error("Select mutated the receiver")
	}
}

func TestSelect_Unknown(t *testing.T) {
	o, _ := New(DefaultOptions(), "")
	if _, err := o.Select("bogus"); !errors.Is(err, domain.ErrInvalidSort) {
		t.Errorf("expected ErrInvalidSort, got %v", err)
	}
}

func TestSelect_CurrentIsNoop(t *testing.T) {
	o, _ := New(DefaultOptions(), "")
	next, err := o.Select("nr_views")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if next.Current() != o.Current() {
		t.Error("current changed")
	}
}
