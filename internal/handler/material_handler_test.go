package handler

import (
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/config"
	"github.com/awraqsoft/munaqasat/internal/handler/testutil"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/service"
)

func setupMaterialTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	rdb := testutil.SetupTestRedis(t)
	router := testutil.SetupRouter()

	cfg := &config.Config{}
	cfg.JWT.Secret = testutil.JWTSecret
	cfg.Cache.SnapshotTTL = time.Minute
	cfg.Cache.PendingTTL = time.Minute
	cfg.Activity.MaxEvents = 100
	cfg.Activity.PruneInterval = time.Minute

	repos := repository.NewRepositories(db)
	svcs := service.NewServices(db, rdb, nil, repos, cfg, zap.NewNop())
	t.Cleanup(svcs.Close)
	handlers := NewHandlers(svcs, cfg)

	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/materials", handlers.Material.Create)
	api.GET("/materials", handlers.Material.List)
	api.GET("/materials/:id", handlers.Material.Get)
	api.POST("/materials/:id/quotes", handlers.Material.AddQuote)
	api.DELETE("/materials/:id", handlers.Material.Delete)
	api.POST("/materials/bulk-delete", handlers.Material.BulkDelete)

	return &testutil.TestEnv{DB: db, RDB: rdb, Router: router, T: t}
}

func TestMaterialDuplicateNameAndUnit(t *testing.T) {
	env := setupMaterialTest(t)
	token := testutil.DefaultTestToken()

	body := map[string]interface{}{
		"type":       entity.MaterialTypeRaw,
		"name":       "Gravel",
		"unit":       "ton",
		"base_price": 25.0,
	}
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/materials", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating material, got %d: %s", w.Code, w.Body.String())
	}

	// Same name and unit within the same type is a duplicate,
	// case-insensitively.
	body["name"] = "  gravel "
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/materials", body, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate material, got %d: %s", w.Code, w.Body.String())
	}

	// A different unit is a different catalog entry.
	body["name"] = "Gravel"
	body["unit"] = "kg"
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/materials", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for same name different unit, got %d: %s", w.Code, w.Body.String())
	}

	// Same name is fine in another catalog type.
	body["type"] = entity.MaterialTypeLocal
	body["unit"] = "ton"
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/materials", body, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for same name in other type, got %d: %s", w.Code, w.Body.String())
	}
}

func TestQuoteLowersEffectivePrice(t *testing.T) {
	env := setupMaterialTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/materials", map[string]interface{}{
		"type":       entity.MaterialTypeForeign,
		"name":       "Bearings",
		"unit":       "box",
		"base_price": 90.0,
		"supplier":   "Default Co",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating material, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	id := resp["data"].(map[string]interface{})["material"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/materials/"+id+"/quotes", map[string]interface{}{
		"supplier": "Cheap Imports",
		"price":    75.0,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 adding quote, got %d: %s", w.Code, w.Body.String())
	}

	var mat entity.Material
	if err := env.DB.Where("id = ?", id).First(&mat).Error; err != nil {
		t.Fatalf("Material row missing: %v", err)
	}
	if got := mat.EffectivePrice(); got != 75 {
		t.Errorf("Expected effective price 75 after quote, got %v", got)
	}
	if got := mat.CheapestSupplier(); got != "Cheap Imports" {
		t.Errorf("Expected cheapest supplier from quote, got %q", got)
	}
}

func TestBulkDeleteIsAllOrNothing(t *testing.T) {
	env := setupMaterialTest(t)
	token := testutil.DefaultTestToken()

	ids := make([]string, 0, 2)
	for _, name := range []string{"Lime", "Clay"} {
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/materials", map[string]interface{}{
			"type":       entity.MaterialTypeRaw,
			"name":       name,
			"unit":       "ton",
			"base_price": 5.0,
		}, token)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201 creating material, got %d: %s", w.Code, w.Body.String())
		}
		resp := testutil.ParseResponse(w)
		ids = append(ids, resp["data"].(map[string]interface{})["material"].(map[string]interface{})["id"].(string))
	}

	// One unknown ID aborts the whole batch.
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/materials/bulk-delete", map[string]interface{}{
		"ids": []string{ids[0], "raw_doesnotexist"},
	}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for batch with unknown id, got %d: %s", w.Code, w.Body.String())
	}
	var live int64
	if err := env.DB.Model(&entity.Material{}).Where("deleted_at IS NULL").Count(&live).Error; err != nil {
		t.Fatalf("Count materials: %v", err)
	}
	if live != 2 {
		t.Fatalf("Aborted batch must leave all materials live, got %d", live)
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/materials/bulk-delete", map[string]interface{}{
		"ids": ids,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 bulk-deleting, got %d: %s", w.Code, w.Body.String())
	}
	if err := env.DB.Model(&entity.Material{}).Where("deleted_at IS NULL").Count(&live).Error; err != nil {
		t.Fatalf("Count materials: %v", err)
	}
	if live != 0 {
		t.Errorf("Expected both materials trashed, got %d live", live)
	}
	var snapshots int64
	if err := env.DB.Model(&entity.TrashRecord{}).Where("source_table = ?", "materials").Count(&snapshots).Error; err != nil {
		t.Fatalf("Count trash records: %v", err)
	}
	if snapshots != 2 {
		t.Errorf("Expected a trash snapshot per deleted material, got %d", snapshots)
	}
}

func TestMaterialIdentifierPrefixFollowsType(t *testing.T) {
	env := setupMaterialTest(t)
	token := testutil.DefaultTestToken()

	cases := []struct {
		typ    string
		prefix string
	}{
		{entity.MaterialTypeRaw, "raw_"},
		{entity.MaterialTypeLocal, "lpr_"},
		{entity.MaterialTypeForeign, "fpr_"},
		{entity.MaterialTypeManufactured, "mfg_"},
	}
	for _, tc := range cases {
		w := testutil.DoRequest(env.Router, "POST", "/api/v1/materials", map[string]interface{}{
			"type":       tc.typ,
			"name":       "Widget " + tc.typ,
			"unit":       "pcs",
			"base_price": 1.0,
		}, token)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected 201 creating %s material, got %d: %s", tc.typ, w.Code, w.Body.String())
		}
		resp := testutil.ParseResponse(w)
		id := resp["data"].(map[string]interface{})["material"].(map[string]interface{})["id"].(string)
		if len(id) < len(tc.prefix) || id[:len(tc.prefix)] != tc.prefix {
			t.Errorf("Expected %s identifier to start with %q, got %q", tc.typ, tc.prefix, id)
		}
	}
}
