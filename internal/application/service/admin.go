package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TemirB/shop-orders/internal/domain"
)

func (s *Service) CacheInfo(ctx context.Context) (domain.CacheMetadata, error) {
	m, err := s.cache.Metadata(ctx)
	if err != nil {
		return domain.CacheMetadata{}, fmt.Errorf("cache metadata: %w", err)
	}
	return m, nil
}

func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Error("Cache clear failed", zap.Error(err))
		return fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info("Cache cleared")
	return nil
}
