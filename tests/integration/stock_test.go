//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pagecraft/commerce/internal/domain/product"
	"github.com/pagecraft/commerce/internal/domain/stock"
	"github.com/pagecraft/commerce/internal/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "commerce",
			"POSTGRES_PASSWORD": "commerce",
			"POSTGRES_DB":       "commerce",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	databaseURL := fmt.Sprintf("postgres://commerce:commerce@%s:%s/commerce?sslmode=disable", host, port.Port())

	pool, err = postgres.NewPool(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	return m.Run()
}

// newStocks returns a fresh service over a clean ledger.
func newStocks(t *testing.T) *stock.Service {
	t.Helper()

	ctx := context.Background()
	_, err := pool.Exec(ctx, `TRUNCATE stock_movements, product_stocks RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return stock.NewService(postgres.NewStockRepository(pool))
}

func TestConsolidate_FoldsConfirmedMovements(t *testing.T) {
	stocks := newStocks(t)
	ctx := context.Background()
	widget := product.Ref{Kind: product.KindGoods, ID: 10}

	_, err := stocks.Receive(ctx, widget, 10)
	require.NoError(t, err)
	_, err = stocks.Reserve(ctx, widget, 55, 2)
	require.NoError(t, err)
	require.NoError(t, stocks.RecordOrderDecrease(ctx, widget, 77, 3))

	res, err := stocks.ConsolidateProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Balance)
	assert.Equal(t, 2, res.Folded)

	// The provisional reservation survives in the ledger.
	repo := postgres.NewStockRepository(pool)
	ps, err := repo.GetByProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, 7, ps.Qty)

	movements, err := repo.ListMovements(ctx, ps.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.False(t, movements[0].Confirmed())
}

func TestConsolidate_Rerun(t *testing.T) {
	stocks := newStocks(t)
	ctx := context.Background()
	widget := product.Ref{Kind: product.KindGoods, ID: 10}

	_, err := stocks.Receive(ctx, widget, 5)
	require.NoError(t, err)

	first, err := stocks.ConsolidateProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Balance)
	assert.Equal(t, 1, first.Folded)

	second, err := stocks.ConsolidateProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, 5, second.Balance)
	assert.Zero(t, second.Folded)
}

// TestConsolidate_DeletesOnlyFoldedIDs checks the truncation contract: a
// movement the fold did not return stays pending, even when it was part of
// the snapshot the fold saw.
func TestConsolidate_DeletesOnlyFoldedIDs(t *testing.T) {
	stocks := newStocks(t)
	ctx := context.Background()
	widget := product.Ref{Kind: product.KindGoods, ID: 10}

	_, err := stocks.Receive(ctx, widget, 10)
	require.NoError(t, err)
	orderItemID := int64(99)

	repo := postgres.NewStockRepository(pool)
	ps, err := repo.GetByProduct(ctx, widget)
	require.NoError(t, err)
	require.NoError(t, repo.AppendMovement(ctx, &stock.Movement{
		StockID:     ps.ID,
		Type:        stock.Decrease,
		Qty:         4,
		OrderItemID: &orderItemID,
	}))

	res, err := repo.ConsolidateWith(ctx, ps.ID, func(balance int, movements []stock.Movement) (int, []int64) {
		require.Len(t, movements, 2)
		// Fold only the first entry.
		return balance + movements[0].Qty, []int64{movements[0].ID}
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Balance)
	assert.Equal(t, 1, res.Folded)

	// The unfolded decrease is still pending and folds on the next run.
	movements, err := repo.ListMovements(ctx, ps.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, 4, movements[0].Qty)

	next, err := stocks.ConsolidateProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, 6, next.Balance)
	assert.Equal(t, 1, next.Folded)
}
