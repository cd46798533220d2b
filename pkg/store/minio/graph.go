package minio

import (
	"context"

	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// SaveGraph stores g as the document of machine.
func SaveGraph[S ~string](ctx context.Context, r *Registry, machine string, g *fsm.Graph[S]) error {
	data, err := fsm.MarshalGraph(g)
	if err != nil {
		return err
	}
	return r.Put(ctx, machine, data)
}

// LoadGraph reads the document of machine and builds its graph.
func LoadGraph[S ~string](ctx context.Context, r *Registry, machine string) (*fsm.Graph[S], error) {
	data, err := r.Get(ctx, machine)
	if err != nil {
		return nil, err
	}
	return fsm.ParseGraph[S](data)
}
