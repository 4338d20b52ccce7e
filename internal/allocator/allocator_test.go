package allocator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/imyashkale/provisioner/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	names   map[string]bool
	domains map[string]bool
}

func (f *fakeRegistry) ExistsByName(_ context.Context, name string) (bool, error) {
	return f.names[name], nil
}

func (f *fakeRegistry) ExistsByDomain(_ context.Context, domain string) (bool, error) {
	return f.domains[domain], nil
}

type fakePorts struct {
	next  int
	calls int
	err   error
}

func (f *fakePorts) NextPort(context.Context) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	port := f.next
	f.next++
	return port, nil
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "acme", true},
		{"digits and underscore", "acme_2", true},
		{"single character", "a", false},
		{"leading digit", "1acme", false},
		{"uppercase", "Acme", false},
		{"hyphen", "acme-corp", false},
		{"path traversal", "../etc", false},
		{"space", "acme corp", false},
		{"quote", "acme'", false},
		{"empty", "", false},
		{"longest", strings.Repeat("a", 63), true},
		{"too long", strings.Repeat("a", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns derived resources", func(t *testing.T) {
		ports := &fakePorts{next: 8070}
		a := New(&fakeRegistry{}, ports, "")

		alloc, err := a.Allocate(ctx, "acme", "Acme.Example.com.")
		require.NoError(t, err)
		assert.Equal(t, 8070, alloc.Port)
		assert.Equal(t, "acme", alloc.DbName)
		assert.Equal(t, "instance_acme", alloc.ContainerName)
		assert.Equal(t, "acme.example.com", alloc.Domain)
	})

	t.Run("custom container prefix", func(t *testing.T) {
		a := New(&fakeRegistry{}, &fakePorts{next: 9000}, "tenant-")
		alloc, err := a.Allocate(ctx, "acme", "acme.example.com")
		require.NoError(t, err)
		assert.Equal(t, "tenant-acme", alloc.ContainerName)
	})

	t.Run("consecutive allocations get distinct ports", func(t *testing.T) {
		a := New(&fakeRegistry{}, &fakePorts{next: 8070}, "")
		first, err := a.Allocate(ctx, "one", "one.example.com")
		require.NoError(t, err)
		second, err := a.Allocate(ctx, "two", "two.example.com")
		require.NoError(t, err)
		assert.NotEqual(t, first.Port, second.Port)
	})

	t.Run("rejections do not lease a port", func(t *testing.T) {
		registry := &fakeRegistry{
			names:   map[string]bool{"taken": true},
			domains: map[string]bool{"taken.example.com": true},
		}

		tests := []struct {
			name    string
			reqName string
			domain  string
			wantErr error
		}{
			{"invalid name", "Bad Name", "ok.example.com", ErrInvalidName},
			{"invalid domain", "okname", "not a domain", ErrInvalidDomain},
			{"bare hostname", "okname", "localhost", ErrInvalidDomain},
			{"name taken", "taken", "free.example.com", repository.ErrNameTaken},
			{"domain taken", "free", "TAKEN.example.com", repository.ErrDomainTaken},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ports := &fakePorts{next: 8070}
				_, err := New(registry, ports, "").Allocate(ctx, tt.reqName, tt.domain)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, ports.calls)
			})
		}
	})

	t.Run("port sequence failure", func(t *testing.T) {
		a := New(&fakeRegistry{}, &fakePorts{err: errors.New("unavailable")}, "")
		_, err := a.Allocate(ctx, "acme", "acme.example.com")
		assert.Error(t, err)
	})
}
