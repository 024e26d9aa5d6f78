package product

import "testing"

func TestNewFromCreateRequest_Defaults(t *testing.T) {
	price := int64(1999)

	p := NewFromCreateRequest(CreateProductRequest{
		SKU:        " tee-blk-m ",
		Name:       "Black tee",
		PriceCents: &price,
	})

	if p.SKU != "TEE-BLK-M" {
		t.Fatalf("sku = %q", p.SKU)
	}
	if p.LowStockThreshold != DefaultLowStockThreshold {
		t.Fatalf("threshold = %d", p.LowStockThreshold)
	}
	if !p.Active {
		t.Fatalf("expected product to default to active")
	}
	if p.PriceCents != 1999 {
		t.Fatalf("price = %d", p.PriceCents)
	}
}

func TestIsLowStock(t *testing.T) {
	tests := []struct {
		stock, threshold int
		want             bool
	}{
		{0, 0, true},
		{5, 5, true},
		{6, 5, false},
	}

	for _, tt := range tests {
		p := Product{Stock: tt.stock, LowStockThreshold: tt.threshold}
		if got := p.IsLowStock(); got != tt.want {
			t.Fatalf("stock=%d threshold=%d got %v want %v", tt.stock, tt.threshold, got, tt.want)
		}
	}
}
