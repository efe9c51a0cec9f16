package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/provision/host"
)

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	h := host.NewMemory()
	h.FailCommand("id", 1, "id: 'node': no such user")

	op := NewCreateUser(h, "node", "/var/lib/node")
	assert.False(t, op.IsAlreadyDone(ctx))

	_, err := op.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, h.Ran("useradd --shell /usr/sbin/nologin --system --home-dir /var/lib/node --no-create-home node"))

	require.NoError(t, op.Rollback(ctx))
	assert.True(t, h.Ran("userdel node"))
}

func TestCreateUserAlreadyExists(t *testing.T) {
	op := NewCreateUser(host.NewMemory(), "node", "")
	assert.True(t, op.IsAlreadyDone(context.Background()))
}

func TestCreateUserValidate(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"node", true},
		{"_svc-1", true},
		{"Node", false},
		{"1node", false},
		{"", false},
		{"a-very-long-user-name-that-exceeds-limits", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := NewCreateUser(host.NewMemory(), tt.name, "").Validate(context.Background())
			assert.Equal(t, tt.valid, ok)
		})
	}
}
