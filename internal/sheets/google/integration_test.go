//go:build integration

package google

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	ports "dairyflow/internal/sheets"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_BillRowFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	opts := Options{
		SpreadsheetID:      spreadsheetID,
		SheetName:          os.Getenv("GOOGLE_SHEET_NAME"),
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	}
	if opts.ServiceAccountJSON == "" && opts.ServiceAccountFile == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := New(ctx, opts, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	row := ports.BillRow{
		BillNumber:  fmt.Sprintf("BILL-TEST-%d", time.Now().UnixNano()),
		Customer:    "Integration Test",
		Year:        time.Now().Year(),
		Period:      time.Now().Format("2006-01"),
		Liters:      "1.000",
		Amount:      "60.00",
		Discount:    "0.00",
		LateFee:     "0.00",
		FinalAmount: "60.00",
		Status:      "unpaid",
	}
	ref, err := client.AppendBill(ctx, row)
	if err != nil {
		t.Fatalf("AppendBill: %v", err)
	}
	t.Logf("wrote %s", ref)

	row.Status = "paid"
	row.PaymentMode = "cash"
	row.PaymentDate = time.Now().Format("2006-01-02")
	if err := client.UpdateBillStatus(ctx, row); err != nil {
		t.Fatalf("UpdateBillStatus: %v", err)
	}
}
