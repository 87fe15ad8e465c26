package dispenser_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"bundleeval/internal/dispenser"
)

func TestEveryTicketClaimedExactlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	const total, claimants = 500, 12

	if _, err := dispenser.Create(path, total); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		mu      sync.Mutex
		seen    = make(map[int64]int)
		refused int
		wg      sync.WaitGroup
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate instances exercise the file lock rather than the mutex.
			d := dispenser.Open(path, total)
			for {
				ticket, ok, err := d.Claim(context.Background())
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				mu.Lock()
				if !ok {
					refused++
					mu.Unlock()
					return
				}
				seen[ticket]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct tickets, got %d", total, len(seen))
	}
	for ticket, count := range seen {
		if ticket < 0 || ticket >= total || count != 1 {
			t.Fatalf("ticket %d claimed %d times", ticket, count)
		}
	}
	if refused != claimants {
		t.Fatalf("expected every claimant to be refused once, got %d", refused)
	}
}

func TestExcessClaimsDoNotAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	d, err := dispenser.Create(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for want := int64(0); want < 2; want++ {
		got, ok, err := d.Claim(ctx)
		if err != nil || !ok || got != want {
			t.Fatalf("claim %d: got %d ok=%v err=%v", want, got, ok, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, ok, err := d.Claim(ctx); ok || err != nil {
			t.Fatalf("expected refusal, ok=%v err=%v", ok, err)
		}
	}
	claimed, err := d.Claimed(ctx)
	if err != nil || claimed != 2 {
		t.Fatalf("Claimed = %d, %v", claimed, err)
	}
}

func TestZeroTotal(t *testing.T) {
	d, err := dispenser.Create(filepath.Join(t.TempDir(), "counter"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := d.Claim(context.Background()); ok || err != nil {
		t.Fatalf("expected no tickets, ok=%v err=%v", ok, err)
	}
}

func TestCreateResetsCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")
	d, err := dispenser.Create(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := d.Claim(context.Background()); err != nil {
		t.Fatal(err)
	}
	d, err = dispenser.Create(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	if ticket, ok, _ := d.Claim(context.Background()); !ok || ticket != 0 {
		t.Fatalf("expected fresh counter, got %d ok=%v", ticket, ok)
	}
}
