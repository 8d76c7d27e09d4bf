package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
)

type fakeProductStore struct {
	created *models.Product
}

func (f *fakeProductStore) Create(_ context.Context, p *models.Product) error {
	f.created = p
	return nil
}

func (f *fakeProductStore) Get(_ context.Context, ref models.ProductRef) (*models.Product, error) {
	return nil, &models.NotFoundError{Kind: "product", ID: ref.Brand}
}

func TestCreateProduct_TrimsKey(t *testing.T) {
	store := &fakeProductStore{}
	svc := NewProductService(store, feature.Default(), nil, logger.Discard(), nil)

	p, err := svc.CreateProduct(context.Background(), &models.ProductInput{
		Brand:    " Dell ",
		Model:    "Optiplex 745",
		Variant:  "default",
		Features: map[string]any{"type": "case", "color": "black"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ProductRef{Brand: "Dell", Model: "Optiplex 745", Variant: "default"}, p.ProductRef)
	assert.Equal(t, feature.Set{"type": feature.EnumValue("case"), "color": feature.EnumValue("black")}, store.created.Features)
}

func TestCreateProduct_Rejects(t *testing.T) {
	tests := map[string]*models.ProductInput{
		"missing variant": {Brand: "Dell", Model: "Optiplex 745"},
		"key as feature":  {Brand: "Dell", Model: "Optiplex 745", Variant: "default", Features: map[string]any{"brand": "HP"}},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			store := &fakeProductStore{}
			svc := NewProductService(store, feature.Default(), nil, logger.Discard(), nil)

			_, err := svc.CreateProduct(context.Background(), in)

			var invalid *models.InvalidArgumentError
			assert.ErrorAs(t, err, &invalid)
			assert.Nil(t, store.created)
		})
	}
}
