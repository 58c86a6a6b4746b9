package proxycache

import (
	"strings"
	"testing"
)

const testService = "https://example.com/arcgis/rest/services/demo/MapServer"

func TestKeyDeterminism(t *testing.T) {
	k1 := Key(testService, "query", "where=POP>100&outFields=*&f=geojson")
	k2 := Key(testService, "query", "where=POP>100&outFields=*&f=geojson")
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestKeyParameterOrderIrrelevant(t *testing.T) {
	k1 := Key(testService, "query", "where=POP>100&outFields=*&f=geojson")
	k2 := Key(testService, "query", "f=geojson&outFields=*&where=POP>100")
	if k1 != k2 {
		t.Fatalf("reordered query produced a different key:\n k1=%s\n k2=%s", k1, k2)
	}
}

func TestKeyDifferentQueriesDiffer(t *testing.T) {
	k1 := Key(testService, "query", "where=POP>100")
	k2 := Key(testService, "query", "where=POP>200")
	if k1 == k2 {
		t.Fatalf("different queries must produce different keys")
	}
	if Key(testService, "query", "") == Key(testService, "identify", "") {
		t.Fatalf("different endpoints must produce different keys")
	}
}

func TestKeyLongQueryTruncatedButStillDistinct(t *testing.T) {
	long1 := "where=" + strings.Repeat("a", 400) + "1"
	long2 := "where=" + strings.Repeat("a", 400) + "2"
	k1 := Key(testService, "query", long1)
	k2 := Key(testService, "query", long2)
	if k1 == k2 {
		t.Fatalf("truncation collapsed distinct queries")
	}
	if len(k1) > 300 {
		t.Fatalf("key too long: %d bytes", len(k1))
	}
}

func TestIndexKeyStripsScheme(t *testing.T) {
	k := IndexKey(testService)
	if strings.Contains(k, "https://") {
		t.Fatalf("index key kept the scheme: %s", k)
	}
	if !strings.HasPrefix(k, "esri:idx:") {
		t.Fatalf("index key = %s", k)
	}
}
