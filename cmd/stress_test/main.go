package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/rl1809/grocery-store/internal/adapter/handler"
	"github.com/rl1809/grocery-store/internal/adapter/storage"
	"github.com/rl1809/grocery-store/internal/auth"
	"github.com/rl1809/grocery-store/internal/core/domain"
	"github.com/rl1809/grocery-store/internal/core/service"
	"github.com/rl1809/grocery-store/internal/port"
)

func main() {
	app := &cli.App{
		Name:  "stress_test",
		Usage: "fire concurrent orders at one item and check nothing is oversold",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "stock", Value: 20, Usage: "initial stock of the item"},
			&cli.IntFlag{Name: "requests", Value: 50, Usage: "number of concurrent orders"},
			&cli.IntFlag{Name: "quantity", Value: 1, Usage: "quantity per order"},
		},
		Commands: []*cli.Command{
			{
				Name:  "local",
				Usage: "run against an in-process order service",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store", Value: "memory", Usage: "memory or mysql"},
					&cli.StringFlag{Name: "dsn", Value: "root:root@tcp(localhost:3306)/grocery?parseTime=true", EnvVars: []string{"MYSQL_DSN"}},
				},
				Action: runLocal,
			},
			{
				Name:  "grpc",
				Usage: "run against a running server over gRPC",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: "localhost:50051"},
					&cli.StringFlag{Name: "item", Required: true, Usage: "id of an item with --stock units in stock"},
					&cli.StringFlag{Name: "jwt-secret", Required: true, EnvVars: []string{"GROCERY_JWT_SECRET"}},
				},
				Action: runGRPC,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type placeFunc func(ctx context.Context, user string) error

func runLocal(c *cli.Context) error {
	ctx := c.Context
	var store port.Store

	switch c.String("store") {
	case "mysql":
		if err := storage.Migrate(c.String("dsn")); err != nil {
			return err
		}
		db, err := sqlx.Open("mysql", c.String("dsn"))
		if err != nil {
			return err
		}
		defer db.Close()
		store = storage.NewMySQLAdapter(db)
	default:
		store = storage.NewMemoryAdapter()
	}

	initialStock := c.Int("stock")
	item, err := store.UpsertByName(ctx, domain.NewItem{
		Name:  "stress-" + uuid.NewString(),
		Price: decimal.RequireFromString("9.99"),
		Stock: initialStock,
		Unit:  "piece",
	})
	if err != nil {
		return err
	}
	defer store.DeleteItem(context.Background(), item.ID)

	svc := service.NewOrderService(store, service.OrderOptions{Logger: zap.NewNop(), QueueSize: c.Int("requests")})
	defer svc.Close()

	qty := c.Int("quantity")
	success := fire(ctx, c.Int("requests"), func(ctx context.Context, user string) error {
		_, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
			UserID: user,
			Lines:  []domain.LineRequest{{ItemID: item.ID, Quantity: qty}},
		})
		return err
	})

	final, err := store.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	return check(initialStock, qty, success, final.Stock)
}

func runGRPC(c *cli.Context) error {
	conn, err := grpc.NewClient(c.String("addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	client := handler.NewOrderServiceClient(conn)

	authn := auth.NewJWTAuthenticator(c.String("jwt-secret"), time.Hour)
	itemID := c.String("item")
	qty := c.Int("quantity")

	success := fire(c.Context, c.Int("requests"), func(ctx context.Context, user string) error {
		token, err := authn.Issue(domain.Identity{UserID: user, Role: domain.RoleUser})
		if err != nil {
			return err
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		_, err = client.PlaceOrder(ctx, &handler.PlaceOrderRPCRequest{
			RequestID: uuid.NewString(),
			Items:     []handler.OrderLineItem{{ItemID: itemID, Quantity: qty}},
		})
		return err
	})

	admin, err := authn.Issue(domain.Identity{UserID: "stress-admin", Role: domain.RoleAdmin})
	if err != nil {
		return err
	}
	ctx := metadata.AppendToOutgoingContext(c.Context, "authorization", "Bearer "+admin)
	// increasing by zero reads the current stock back
	final, err := client.AdjustStock(ctx, &handler.AdjustStockRPCRequest{ItemID: itemID, Action: "increase", Amount: 0})
	if err != nil {
		return err
	}
	return check(c.Int("stock"), qty, success, final.Stock)
}

func fire(ctx context.Context, total int, place placeFunc) int {
	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			if err := place(ctx, fmt.Sprintf("user-%d", userID)); err != nil {
				failCount.Add(1)
				return
			}
			successCount.Add(1)
		}(i)
	}
	wg.Wait()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", total)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", time.Since(start))
	fmt.Println("==========================================")

	return int(successCount.Load())
}

func check(initialStock, qty, success, finalStock int) error {
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if want := initialStock - success*qty; finalStock != want || finalStock < 0 {
		return fmt.Errorf("FAIL: expected final stock %d, got %d", want, finalStock)
	}
	fmt.Println("PASS: final stock matches successful orders")
	return nil
}
