package integration

import (
	"fmt"
	"net/http"
	"testing"

	"brokerbridge/internal/models"
)

const (
	orgA  = "0195c100-0000-7000-8000-00000000000a"
	orgB  = "0195c100-0000-7000-8000-00000000000b"
	userA = "0195c100-0000-7000-8000-000000000001"
)

const brokerageExport = "Symbol,Description,Quantity,Last Price,Average Cost Basis,Cost Basis Total,Current Value,Total Gain/Loss Dollar\n" +
	"AAPL,APPLE INC,100,190.00,150.00,\"15,000.00\",\"19,000.00\",\"4,000.00\"\n" +
	"MSFT,MICROSOFT CORP,50,300.00,280.00,\"14,000.00\",\"15,000.00\",\"1,000.00\"\n" +
	"AAPL  260618C00200000,CALL AAPL 06/18/26 200,2,5.00,4.50,900.00,\"1,000.00\",100.00\n"

func TestCSVImportFlow(t *testing.T) {
	app := setupApp(t)
	token := authToken(t, userA, orgA)

	// Preview before committing anything.
	previewBody := fmt.Sprintf(`{"content":%q}`, brokerageExport)
	rec := app.request("POST", "/api/v1/connections/csv/preview", previewBody, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview failed: %d %s", rec.Code, rec.Body.String())
	}
	preview := parseJSON(t, rec)["preview"].(map[string]interface{})
	if preview["row_count"].(float64) != 3 {
		t.Errorf("expected 3 preview rows, got %v", preview["row_count"])
	}
	columns := preview["columns"].(map[string]interface{})
	if _, ok := columns["symbol"]; !ok {
		t.Errorf("expected symbol column recognized, got %v", columns)
	}

	// Nothing persisted by the preview.
	var connCount int64
	app.DB.Model(&models.BrokerConnection{}).Count(&connCount)
	if connCount != 0 {
		t.Fatalf("preview persisted %d connections", connCount)
	}

	// Create the connection and run the first sync in one call.
	createBody := fmt.Sprintf(`{"file_name":"positions.csv","content":%q,"source_tag":"Brokerage export","sync":true}`, brokerageExport)
	rec = app.request("POST", "/api/v1/connections/csv", createBody, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	conn := result["connection"].(map[string]interface{})
	connID := conn["id"].(string)
	syncObj := result["sync"].(map[string]interface{})
	if syncObj["status"] != string(models.SyncSuccess) {
		t.Fatalf("expected SUCCESS sync, got %v: %s", syncObj["status"], rec.Body.String())
	}
	accounts := syncObj["accounts"].([]interface{})
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account result, got %d", len(accounts))
	}
	if accounts[0].(map[string]interface{})["lot_count"].(float64) != 3 {
		t.Errorf("expected 3 lots captured, got %v", accounts[0])
	}

	// Connection is ACTIVE with a sync timestamp.
	rec = app.request("GET", "/api/v1/connections/"+connID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get connection failed: %d %s", rec.Code, rec.Body.String())
	}
	conn = parseJSON(t, rec)["connection"].(map[string]interface{})
	if conn["status"] != string(models.ConnectionActive) {
		t.Errorf("expected ACTIVE connection, got %v", conn["status"])
	}
	if conn["last_synced_at"] == nil {
		t.Error("expected last_synced_at to be set")
	}

	// The synthetic import account exists.
	rec = app.request("GET", "/api/v1/connections/"+connID+"/accounts", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get accounts failed: %d %s", rec.Code, rec.Body.String())
	}
	accts := parseJSON(t, rec)["accounts"].([]interface{})
	if len(accts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accts))
	}

	// Audit trail has the connection-level and account-level records.
	rec = app.request("GET", "/api/v1/connections/"+connID+"/logs", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get logs failed: %d %s", rec.Code, rec.Body.String())
	}
	logs := parseJSON(t, rec)["data"].([]interface{})
	if len(logs) != 2 {
		t.Fatalf("expected 2 sync logs, got %d", len(logs))
	}
	for _, raw := range logs {
		entry := raw.(map[string]interface{})
		if entry["status"] != string(models.SyncSuccess) {
			t.Errorf("expected SUCCESS log, got %v", entry)
		}
	}

	// Another org cannot see the connection.
	otherToken := authToken(t, userA, orgB)
	rec = app.request("GET", "/api/v1/connections/"+connID, "", otherToken)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign org, got %d", rec.Code)
	}

	// Delete removes the connection and all derived data.
	rec = app.request("DELETE", "/api/v1/connections/"+connID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d %s", rec.Code, rec.Body.String())
	}
	rec = app.request("GET", "/api/v1/connections/"+connID, "", token)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
	var lotCount int64
	app.DB.Model(&models.PositionLot{}).Count(&lotCount)
	if lotCount != 0 {
		t.Errorf("expected lots removed with connection, found %d", lotCount)
	}
}

func TestCSVImportRejectsUnusableFile(t *testing.T) {
	app := setupApp(t)
	token := authToken(t, userA, orgA)

	body := fmt.Sprintf(`{"content":%q}`, "Date,Payee,Amount\n2026-01-02,Grocer,12.50\n")
	rec := app.request("POST", "/api/v1/connections/csv/preview", body, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview failed: %d %s", rec.Code, rec.Body.String())
	}
	preview := parseJSON(t, rec)["preview"].(map[string]interface{})
	if columns, ok := preview["columns"].(map[string]interface{}); ok {
		if _, ok := columns["symbol"]; ok {
			t.Errorf("expense export should not map a symbol column: %v", columns)
		}
	}

	// Creating a connection from the same content is refused and persists nothing.
	createBody := fmt.Sprintf(`{"file_name":"expenses.csv","content":%q}`, "Date,Payee,Amount\n2026-01-02,Grocer,12.50\n")
	rec = app.request("POST", "/api/v1/connections/csv", createBody, token)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var connCount int64
	app.DB.Model(&models.BrokerConnection{}).Count(&connCount)
	if connCount != 0 {
		t.Errorf("rejected import persisted %d connections", connCount)
	}
}

func TestRequestsRequireToken(t *testing.T) {
	app := setupApp(t)

	rec := app.request("GET", "/api/v1/connections", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
