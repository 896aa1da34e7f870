package vstate

import "testing"

func TestFeedOrderAndCancel(t *testing.T) {
	var f Feed[int]
	var got []string

	cancelA := f.Subscribe(func(v int) { got = append(got, "a") })
	f.Subscribe(func(v int) { got = append(got, "b") })

	f.Publish(1)
	cancelA()
	cancelA()
	f.Publish(2)

	want := []string{"a", "b", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if f.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.Len())
	}
}

func TestFeedCancelInsideCallback(t *testing.T) {
	var f Feed[string]
	calls := 0
	var cancel func()
	cancel = f.Subscribe(func(string) {
		calls++
		cancel()
	})

	f.Publish("x")
	f.Publish("y")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
