package eventq

import "testing"

func TestOfferFullAndClosed(t *testing.T) {
	ch := make(chan int, 1)
	if !Offer(ch, 1) {
		t.Fatal("first Offer should succeed")
	}
	if Offer(ch, 2) {
		t.Fatal("Offer on full channel should fail")
	}
	<-ch
	close(ch)
	if Offer(ch, 3) {
		t.Fatal("Offer on closed channel should fail")
	}
}

func TestSignalCoalesces(t *testing.T) {
	sig := NewSignal()
	Notify(sig)
	Notify(sig)
	Notify(sig)
	<-sig
	select {
	case <-sig:
		t.Fatal("expected notifications to coalesce into one")
	default:
	}
	Notify(sig)
	Drain(sig)
	if len(sig) != 0 {
		t.Fatalf("len after Drain = %d, want 0", len(sig))
	}
}
