package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/auth"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	initialStock = 20
	queueSize    = 100
)

// placeFunc places one single-unit order for userID and reports whether it
// was accepted.
type placeFunc func(ctx context.Context, userID string) (bool, error)

func main() {
	mode := flag.String("mode", "memory", "memory, http or grpc")
	httpURL := flag.String("http", "http://localhost:8080", "server base URL for http mode and stock checks")
	grpcAddr := flag.String("grpc", "localhost:50051", "server address for grpc mode")
	productID := flag.Int64("product", 1, "product to order in http and grpc modes")
	totalRequests := flag.Int("n", 50, "number of concurrent orders")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}

	ctx := context.Background()
	var (
		place      placeFunc
		stockCheck func() (int, error)
	)

	switch *mode {
	case "memory":
		store := storage.NewMemoryAdapter(domain.Product{
			ID:            *productID,
			Name:          "stress-item",
			Price:         decimal.RequireFromString("9.99"),
			StockQuantity: initialStock,
			Active:        true,
		})
		orderService := service.NewOrderService(store, queueSize)
		defer orderService.Close()

		// Drain the event queue in background
		go func() {
			for range orderService.GetEventQueue() {
			}
		}()

		place = func(ctx context.Context, userID string) (bool, error) {
			_, err := orderService.PlaceOrder(ctx, userID, []domain.LineRequest{{ProductID: *productID, Quantity: 1}}, nil)
			if errors.Is(err, domain.ErrInsufficientStock) {
				return false, nil
			}
			return err == nil, err
		}
		stockCheck = func() (int, error) {
			p, err := store.GetProduct(ctx, *productID)
			if err != nil || p == nil {
				return 0, fmt.Errorf("read stock: %v", err)
			}
			return p.StockQuantity, nil
		}

	case "http", "grpc":
		client := resty.New().SetBaseURL(*httpURL).SetTimeout(10 * time.Second)
		stockCheck = func() (int, error) { return remoteStock(client, *productID) }

		if *mode == "http" {
			place = func(ctx context.Context, userID string) (bool, error) {
				return placeHTTP(ctx, client, secret, userID, *productID)
			}
		} else {
			conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				log.Fatalf("failed to dial grpc: %v", err)
			}
			defer conn.Close()
			orders := handler.NewOrderClient(conn)

			place = func(ctx context.Context, userID string) (bool, error) {
				return placeGRPC(ctx, orders, secret, userID, *productID)
			}
		}

	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	before, err := stockCheck()
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}

	// Counters
	var successCount, soldOutCount, errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			ok, err := place(ctx, fmt.Sprintf("user-%d", userID))
			switch {
			case err != nil:
				errorCount.Add(1)
				log.Printf("request %d failed: %v", userID, err)
			case ok:
				successCount.Add(1)
			default:
				soldOutCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := stockCheck()
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}

	// Results
	success := int(successCount.Load())
	expected := min(before, *totalRequests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Mode:             %s\n", *mode)
	fmt.Printf("Stock Before:     %d\n", before)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Stock After:      %d\n", after)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == expected {
		fmt.Printf("PASS: exactly %d orders succeeded\n", expected)
	} else {
		fmt.Printf("FAIL: expected %d successes, got %d\n", expected, success)
	}

	if after == before-success && after >= 0 {
		fmt.Println("PASS: stock matches accepted orders")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", before-success, after)
	}
}

func placeHTTP(ctx context.Context, client *resty.Client, secret, userID string, productID int64) (bool, error) {
	token, err := auth.IssueToken(secret, userID, false, time.Minute)
	if err != nil {
		return false, err
	}

	resp, err := client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(handler.PlaceOrderRequest{
			Items: []domain.LineRequest{{ProductID: productID, Quantity: 1}},
		}).
		Post("/api/orders")
	if err != nil {
		return false, err
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
		return true, nil
	case http.StatusConflict:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), resp.String())
	}
}

func placeGRPC(ctx context.Context, orders *handler.OrderClient, secret, userID string, productID int64) (bool, error) {
	token, err := auth.IssueToken(secret, userID, false, time.Minute)
	if err != nil {
		return false, err
	}

	_, err = orders.PlaceOrder(ctx, token, &handler.PlaceOrderRPCRequest{
		Items: []domain.LineRequest{{ProductID: productID, Quantity: 1}},
	})
	if status.Code(err) == codes.FailedPrecondition {
		return false, nil
	}
	return err == nil, err
}

func remoteStock(client *resty.Client, productID int64) (int, error) {
	var product domain.Product
	resp, err := client.R().
		SetResult(&product).
		Get("/api/products/" + strconv.FormatInt(productID, 10))
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("get product %d: status %d", productID, resp.StatusCode())
	}
	return product.StockQuantity, nil
}
