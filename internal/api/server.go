package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/config"
	"github.com/gridapi/gridapi/internal/querysql"
	"github.com/gridapi/gridapi/internal/schema"
	"github.com/gridapi/gridapi/internal/store"
)

// Server owns one resource per schema table. Construction is fail-fast: a
// table whose codecs cannot be derived aborts startup rather than serving a
// partial surface.
type Server struct {
	cfg       config.Config
	log       *zap.Logger
	resources []*Resource
}

// New derives codecs for every table, creates the backing tables and builds
// the resource handlers. Tables are created in declaration order so foreign
// key targets exist before their referents.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, sch *schema.Schema, st *store.Store) (*Server, error) {
	reg := codec.NewRegistry()
	naming := cfg.FKNaming()

	srv := &Server{cfg: cfg, log: log}
	for _, spec := range sch.Tables {
		codecs, err := codec.DeriveFieldCodecs(spec.Fields, reg, codec.DeriveConfig{
			ForeignKeyNaming: naming,
		})
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", spec.Name, err)
		}

		tbl, err := store.NewTable(st, spec, codecs)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", spec.Name, err)
		}
		if err := tbl.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("table %s: %w", spec.Name, err)
		}

		srv.resources = append(srv.resources, &Resource{
			spec:         spec,
			tbl:          tbl,
			codecs:       codecs,
			serialize:    codec.DeriveRowSerializer(spec.Fields, codecs, naming),
			compiler:     querysql.NewCompiler(spec),
			naming:       naming,
			defaultLimit: cfg.DefaultLimit,
			log:          log.With(zap.String("table", spec.Name)),
		})
	}
	return srv, nil
}
