package storage_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/grocery-store/internal/adapter/storage"
	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/core/service"
)

type testEnv struct {
	redis *redis.Client
	mysql *sqlx.DB
	cache *storage.RedisAdapter
	db    *storage.MySQLAdapter
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/grocery?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	db, err := sqlx.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(mysqlDSN))

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		db:    storage.NewMySQLAdapter(db),
	}
}

func (env *testEnv) seed(t *testing.T, stock int) *domain.Item {
	item, err := env.db.UpsertByName(context.Background(), domain.NewItem{
		Name:  "integration-" + uuid.NewString(),
		Price: decimal.RequireFromString("2.50"),
		Stock: stock,
		Unit:  "piece",
	})
	require.NoError(t, err)
	t.Cleanup(func() { env.db.DeleteItem(context.Background(), item.ID) })
	return item
}

func countOrderLines(t *testing.T, db *sqlx.DB, itemID string) int {
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM order_lines WHERE item_id = ?`, itemID))
	return n
}

func TestIntegration_ConcurrentOrdersAgainstMySQL(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	initialStock := 10
	totalRequests := 20
	item := env.seed(t, initialStock)

	svc := service.NewOrderService(env.db, service.OrderOptions{Cache: env.cache, Logger: zaptest.NewLogger(t), QueueSize: totalRequests})
	defer svc.Close()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
				UserID:    "integration-user",
				RequestID: uuid.NewString(),
				Lines:     []domain.LineRequest{{ItemID: item.ID, Quantity: 1}},
			})
			if err == nil {
				successCount.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, initialStock, successCount.Load())

	got, err := env.db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, initialStock, countOrderLines(t, env.mysql, item.ID))
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	item := env.seed(t, 10)

	svc := service.NewOrderService(env.db, service.OrderOptions{Cache: env.cache, Logger: zaptest.NewLogger(t)})
	defer svc.Close()

	req := domain.PlaceOrderRequest{
		UserID:    "integration-user",
		RequestID: "same-request-id-" + uuid.NewString(),
		Lines:     []domain.LineRequest{{ItemID: item.ID, Quantity: 1}},
	}
	t.Cleanup(func() { env.redis.Del(ctx, "order:"+req.UserID+":"+req.RequestID) })

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PlaceOrder(ctx, req); err == nil {
				successCount.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successCount.Load())
	got, err := env.db.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Stock)
}

func TestIntegration_RejectedOrderCanBeRetried(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	item := env.seed(t, 1)

	svc := service.NewOrderService(env.db, service.OrderOptions{Cache: env.cache, Logger: zaptest.NewLogger(t)})
	defer svc.Close()

	req := domain.PlaceOrderRequest{
		UserID:    "integration-user",
		RequestID: uuid.NewString(),
		Lines:     []domain.LineRequest{{ItemID: item.ID, Quantity: 2}},
	}
	t.Cleanup(func() { env.redis.Del(ctx, "order:"+req.UserID+":"+req.RequestID) })

	_, err := svc.PlaceOrder(ctx, req)
	require.ErrorIs(t, err, domain.InsufficientStock(item.ID))
	assert.Zero(t, countOrderLines(t, env.mysql, item.ID))

	_, err = env.db.AdjustStock(ctx, item.ID, domain.StockSet, 5)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, countOrderLines(t, env.mysql, item.ID))
}
