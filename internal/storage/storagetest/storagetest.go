// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/FranksOps/kwscout/internal/storage"
)

// Run exercises b against the storage.Backend contract. ownerPrefix keeps
// runs against shared databases from seeing each other's rows.
func Run(t *testing.T, b storage.Backend, ownerPrefix string) {
	t.Helper()
	ctx := context.Background()
	owner := ownerPrefix + "-owner"
	other := ownerPrefix + "-other"

	t.Run("CreatePending", func(t *testing.T) {
		k, err := b.Create(ctx, owner, "Apple")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if k.ID == "" {
			t.Fatalf("expected generated id")
		}
		if k.FetchStatus != storage.StatusPending {
			t.Errorf("expected pending, got %s", k.FetchStatus)
		}
		if k.AdsTopCount != 0 || len(k.AdsTopURLs) != 0 || len(k.ResultURLs) != 0 {
			t.Errorf("expected empty metrics on creation, got %+v", k)
		}

		got, err := b.Find(ctx, k.ID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got.Name != "Apple" || got.OwnerID != owner {
			t.Errorf("unexpected record %+v", got)
		}
	})

	t.Run("FindMissing", func(t *testing.T) {
		_, err := b.Find(ctx, "00000000-0000-4000-8000-000000000000")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateFetched", func(t *testing.T) {
		k, err := b.Create(ctx, owner, "vpn")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		ads := []string{"https://thetopvpn.com", "https://nordvpn.com", "https://nordvpn.com"}
		results := []string{"https://www.topvpn.com/VPN/vpn", "https://example.com"}
		if err := b.Update(ctx, k.ID, storage.Fetched(ads, results)); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, err := b.Find(ctx, k.ID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got.FetchStatus != storage.StatusFetched {
			t.Errorf("expected fetched, got %s", got.FetchStatus)
		}
		if got.AdsTopCount != 3 || len(got.AdsTopURLs) != 3 {
			t.Errorf("expected 3 ads, got count=%d urls=%v", got.AdsTopCount, got.AdsTopURLs)
		}
		for i := range ads {
			if got.AdsTopURLs[i] != ads[i] {
				t.Errorf("ad %d: expected %s, got %s", i, ads[i], got.AdsTopURLs[i])
			}
		}
		if len(got.ResultURLs) != 2 || got.ResultURLs[0] != results[0] {
			t.Errorf("unexpected result urls %v", got.ResultURLs)
		}
		if got.FetchedAt == nil {
			t.Errorf("expected fetched_at to be set")
		}
	})

	t.Run("UpdateOnlyFromPending", func(t *testing.T) {
		k, err := b.Create(ctx, owner, "Banana")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := b.Update(ctx, k.ID, storage.Failed("rate limited: status 422")); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		err = b.Update(ctx, k.ID, storage.Fetched([]string{"https://ad.example"}, nil))
		if !errors.Is(err, storage.ErrNotPending) {
			t.Fatalf("expected ErrNotPending, got %v", err)
		}

		got, err := b.Find(ctx, k.ID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got.FetchStatus != storage.StatusFailed || got.AdsTopCount != 0 {
			t.Errorf("terminal state was overwritten: %+v", got)
		}
		if got.FetchError != "rate limited: status 422" {
			t.Errorf("unexpected fetch error %q", got.FetchError)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		err := b.Update(ctx, "00000000-0000-4000-8000-000000000001", storage.Failed("x"))
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListPaginatesInCreationOrder", func(t *testing.T) {
		var names []string
		for i := range 5 {
			name := fmt.Sprintf("kw-%d", i)
			names = append(names, name)
			if _, err := b.Create(ctx, other, name); err != nil {
				t.Fatalf("create failed: %v", err)
			}
		}

		first, total, err := b.List(ctx, other, 1, 2)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if total != 5 {
			t.Errorf("expected total 5, got %d", total)
		}
		if len(first) != 2 || first[0].Name != names[0] || first[1].Name != names[1] {
			t.Errorf("unexpected first page %v", keywordNames(first))
		}

		last, _, err := b.List(ctx, other, 3, 2)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(last) != 1 || last[0].Name != names[4] {
			t.Errorf("unexpected last page %v", keywordNames(last))
		}

		beyond, total, err := b.List(ctx, other, 9, 2)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(beyond) != 0 || total != 5 {
			t.Errorf("expected empty page with total 5, got %d records, total %d", len(beyond), total)
		}

		for _, k := range first {
			if k.OwnerID != other {
				t.Errorf("list leaked record of owner %s", k.OwnerID)
			}
		}

		far, total, err := b.List(ctx, other, math.MaxInt/10, 20)
		if err != nil {
			t.Fatalf("list with huge page failed: %v", err)
		}
		if len(far) != 0 || total != 5 {
			t.Errorf("expected empty page with total 5 for a huge page, got %d records, total %d", len(far), total)
		}
	})
}

func keywordNames(ks []*storage.Keyword) []string {
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		out = append(out, k.Name)
	}
	return out
}
