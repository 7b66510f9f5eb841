// Package storage defines where the agent keeps sampled metrics between reports.
package storage

import (
	"context"
	"errors"

	"github.com/Eotel/go-machinist/model"
)

var ErrMetricNotFound = errors.New("metric not found")

type Storage interface {
	Save(ctx context.Context, metric model.Metric) error
	SaveBatch(ctx context.Context, metrics []model.Metric) error
	Get(ctx context.Context, namespace, name string) (model.Metric, error)
	GetAll(ctx context.Context) ([]model.Metric, error)
}

// Key identifies a metric inside a store.
func Key(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "/" + name
}
