package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/internal/appcli"
	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// capture swaps stdout for the test and returns the buffer.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func initConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	capture(t)
	require.NoError(t, cmdInit([]string{"--config", path, "--server", "http://127.0.0.1:1"}))
	return path
}

// seedStore writes a session and an orders snapshot as a previous live run
// would have left them.
func seedStore(t *testing.T, path string, orders ...dashboard.Order) {
	t.Helper()
	ctx := context.Background()
	app, err := appcli.NewApp(appcli.Options{ConfigPath: path, Offline: true})
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()

	require.NoError(t, app.Store.SaveSession(ctx, dashboard.StoredSession{
		Token: "token", Principal: "u-alice", Email: "alice@example.com",
	}))
	rows := make([]dashboard.Record, 0, len(orders))
	for i, o := range orders {
		rec := dashboard.OrderRecord(o)
		rec["id"] = fmt.Sprintf("o%d", i+1)
		rec["created"] = o.Created.UTC().Format(time.RFC3339)
		rows = append(rows, rec)
	}
	require.NoError(t, app.Store.SaveSnapshot(ctx, dashboard.CollectionOrders, "u-alice", rows))
}

func order(number, customer string, status dashboard.OrderStatus, price string, qty int) dashboard.Order {
	return dashboard.Order{
		Number:       number,
		CustomerName: customer,
		Status:       status,
		Payment:      dashboard.PaymentUnpaid,
		Source:       "Instagram",
		Lines:        []dashboard.LineItem{{Name: "Mug", Price: decimal.RequireFromString(price), Quantity: qty}},
		Created:      time.Now().Add(-time.Hour),
	}
}

func TestParseLine(t *testing.T) {
	line, err := parseLine("Mug:12.50:2")
	require.NoError(t, err)
	assert.Equal(t, "Mug", line.Name)
	assert.True(t, line.Price.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 2, line.Quantity)
	assert.Empty(t, line.ProductID)

	line, err = parseLine("Tote bag:30:1:p123")
	require.NoError(t, err)
	assert.Equal(t, "p123", line.ProductID)

	for _, bad := range []string{"Mug", "Mug:abc:1", "Mug:5:0", "Mug:-1:1", "Mug:1.005:1", "a:1:1:p:extra"} {
		_, err := parseLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestSubcommand(t *testing.T) {
	sub, rest := subcommand([]string{"add", "--item", "x"}, "list")
	assert.Equal(t, "add", sub)
	assert.Equal(t, []string{"--item", "x"}, rest)

	sub, rest = subcommand([]string{"--offline"}, "list")
	assert.Equal(t, "list", sub)
	assert.Equal(t, []string{"--offline"}, rest)

	sub, rest = subcommand(nil, "show")
	assert.Equal(t, "show", sub)
	assert.Empty(t, rest)
}

func TestDescribe(t *testing.T) {
	ve := &dashboard.ValidationError{Fields: []string{"customer", "items"}}
	assert.Equal(t, "missing required fields: customer, items", describe(fmt.Errorf("submit: %w", ve)))
	assert.Contains(t, describe(&dashboard.AuthError{Reason: "no stored session"}), "sellerdesk login")
	assert.Contains(t, describe(dashboard.ErrConfirmationRequired), "--confirm")
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := initConfig(t)
	out := capture(t)

	err := cmdInit([]string{"--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	require.NoError(t, cmdInit([]string{"--config", path, "--force"}))
	assert.Contains(t, out.String(), "Config written to "+path)
	assert.Contains(t, out.String(), "No server set yet")
}

func TestStatusSignedOutThenCached(t *testing.T) {
	path := initConfig(t)
	out := capture(t)
	require.NoError(t, cmdStatus([]string{"--config", path}))
	assert.Contains(t, out.String(), "Server:  http://127.0.0.1:1")
	assert.Contains(t, out.String(), "Session: signed out")

	seedStore(t, path, order("ORD-000001", "Ada", dashboard.OrderPending, "10", 1))
	out.Reset()
	require.NoError(t, cmdStatus([]string{"--config", path}))
	assert.Contains(t, out.String(), "Session: alice@example.com (u-alice)")
	assert.Contains(t, out.String(), "orders")
	assert.Contains(t, out.String(), "1 rows")
}

func TestOfflineOrdersList(t *testing.T) {
	path := initConfig(t)
	seedStore(t, path,
		order("ORD-000001", "Ada", dashboard.OrderPending, "10", 1),
		order("ORD-000002", "Grace", dashboard.OrderCompleted, "7.25", 2),
	)
	out := capture(t)

	require.NoError(t, cmdOrders([]string{"list", "--config", path, "--offline"}))
	assert.Contains(t, out.String(), "ORD-000001")
	assert.Contains(t, out.String(), "ORD-000002")
	assert.Contains(t, out.String(), "14.50")
	assert.Contains(t, out.String(), "(offline snapshot from")

	out.Reset()
	require.NoError(t, cmdOrders([]string{"--config", path, "--offline", "--q", "grace"}))
	assert.NotContains(t, out.String(), "ORD-000001")
	assert.Contains(t, out.String(), "ORD-000002")
}

func TestOfflineStats(t *testing.T) {
	path := initConfig(t)
	seedStore(t, path,
		order("ORD-000001", "Ada", dashboard.OrderPending, "10", 3),
		order("ORD-000002", "Grace", dashboard.OrderCancelled, "99", 1),
	)
	out := capture(t)

	require.NoError(t, cmdStats([]string{"--config", path, "--offline"}))
	lines := strings.Split(out.String(), "\n")
	var allTime string
	for _, l := range lines {
		if strings.HasPrefix(l, "All time") {
			allTime = l
		}
	}
	require.NotEmpty(t, allTime, out.String())
	assert.Contains(t, allTime, "2")
	assert.Contains(t, allTime, "30.00")
	assert.NotContains(t, allTime, "99")
}

func TestWritesNeedNetwork(t *testing.T) {
	path := initConfig(t)
	err := cmdOrders([]string{"add", "--config", path, "--offline", "--item", "Mug:5:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--offline")
}

func TestOfflineWithoutSessionIsAuthError(t *testing.T) {
	path := initConfig(t)
	capture(t)
	err := cmdCustomers([]string{"--config", path, "--offline"})
	assert.ErrorIs(t, err, dashboard.ErrAuth)
}
