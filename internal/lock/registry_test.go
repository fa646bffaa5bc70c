package lock

import (
	"context"
	"errors"
	"testing"
)

// mockRepository is an in-memory Repository for registry tests.
type mockRepository struct {
	records []Record
	listErr error
}

func (m *mockRepository) Get(_ context.Context, id string) (*Record, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *mockRepository) List(context.Context) ([]Record, error) {
	return m.records, m.listErr
}

func (m *mockRepository) Upsert(_ context.Context, rec *Record) error {
	m.records = append(m.records, *rec)
	return nil
}

func (m *mockRepository) Delete(context.Context, string) error { return nil }

func TestRegistry_GatewayLookup(t *testing.T) {
	reg := newTestRegistry(t, newStubGateway(t))

	client, err := reg.Gateway("gw1")
	if err != nil || client.ID() != "gw1" {
		t.Fatalf("Gateway(gw1) = %v, %v", client, err)
	}
	if _, err := reg.Gateway("nope"); !errors.Is(err, ErrGatewayNotFound) {
		t.Errorf("Gateway(nope) error = %v, want ErrGatewayNotFound", err)
	}
	if err := reg.AddGateway(client); !errors.Is(err, ErrGatewayExists) {
		t.Errorf("AddGateway duplicate error = %v, want ErrGatewayExists", err)
	}
	if ids := reg.GatewayIDs(); len(ids) != 1 || ids[0] != "gw1" {
		t.Errorf("GatewayIDs() = %v", ids)
	}
}

func TestRegistry_AddDevice(t *testing.T) {
	reg := newTestRegistry(t, newStubGateway(t))

	if _, err := reg.AddDevice(testRecord("a", "A")); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if _, err := reg.AddDevice(testRecord("a", "A")); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("duplicate AddDevice error = %v, want ErrDeviceExists", err)
	}

	orphan := testRecord("b", "B")
	orphan.GatewayID = "other"
	if _, err := reg.AddDevice(orphan); !errors.Is(err, ErrGatewayNotFound) {
		t.Errorf("AddDevice with unknown gateway error = %v", err)
	}

	if _, err := reg.AddDevice(Record{ID: "c"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("AddDevice invalid error = %v, want ErrInvalidRecord", err)
	}

	if _, err := reg.Device("zzz"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Device(zzz) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_DevicesStableIdentity(t *testing.T) {
	reg := newTestRegistry(t, newStubGateway(t))
	for _, id := range []string{"a", "b", "c"} {
		if _, err := reg.AddDevice(testRecord(id, id)); err != nil {
			t.Fatal(err)
		}
	}

	first := reg.Devices()
	second := reg.Devices()
	if len(first) != 3 {
		t.Fatalf("Devices() len = %d, want 3", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("device %d pointer changed between calls", i)
		}
	}
	if first[0].ID() != "a" || first[2].ID() != "c" {
		t.Error("insertion order not preserved")
	}

	// Mutating the returned slice must not affect the registry.
	first[0] = nil
	if reg.Devices()[0] == nil {
		t.Error("Devices() exposed internal slice")
	}
}

func TestRegistry_Load(t *testing.T) {
	reg := newTestRegistry(t, newStubGateway(t))
	orphan := testRecord("x", "X")
	orphan.GatewayID = "missing"
	repo := &mockRepository{records: []Record{testRecord("a", "A"), orphan, testRecord("b", "B")}}

	if err := reg.Load(context.Background(), repo); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if n := len(reg.Devices()); n != 2 {
		t.Errorf("loaded %d devices, want 2", n)
	}
}

func TestRegistry_LoadError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	if err := reg.Load(context.Background(), &mockRepository{listErr: boom}); !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want boom", err)
	}
}

func TestRegistry_Snapshots(t *testing.T) {
	reg := newTestRegistry(t, newStubGateway(t))
	_, _ = reg.AddDevice(testRecord("a", "Alpha"))

	snaps := reg.Snapshots()
	if len(snaps) != 1 || snaps[0].Name != "Alpha" || snaps[0].GatewayID != "gw1" {
		t.Errorf("Snapshots() = %+v", snaps)
	}
}
