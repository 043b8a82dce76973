package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-admin/internal/catalog"
	"github.com/sells-group/lead-admin/internal/parser"
	"github.com/sells-group/lead-admin/internal/store"
)

// openStore opens and migrates the local lead store from config.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "open store %s", cfg.Store.Path)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// importDefaults builds the parser defaults from config, wiring in the
// product catalog when one is configured and readable.
func importDefaults() parser.Defaults {
	d := parser.Defaults{
		Product:       cfg.Import.DefaultProduct,
		Price:         cfg.Import.DefaultPrice,
		Country:       cfg.Import.DefaultCountry,
		Origin:        cfg.Import.Origin,
		PaymentMethod: cfg.Import.PaymentMethod,
		PaymentStatus: cfg.Import.PaymentStatus,
	}

	if cfg.Catalog.Path != "" {
		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			zap.L().Warn("product catalog unavailable, using default price",
				zap.String("path", cfg.Catalog.Path),
				zap.Error(err),
			)
		} else {
			d.PriceFor = cat.PriceFor
		}
	}
	return d
}
