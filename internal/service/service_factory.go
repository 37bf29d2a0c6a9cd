package service

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"registration-service/internal/config"
	"registration-service/internal/repository"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	store     repository.RegistrationStore
	publisher Publisher
	events    EventEmitter
	clock     clock.Clock
	cfg       config.RegistrationConfig
	logger    *zap.Logger

	registrationService *RegistrationService
}

func NewServiceFactory(
	store repository.RegistrationStore,
	publisher Publisher,
	events EventEmitter,
	clk clock.Clock,
	cfg config.RegistrationConfig,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		store:     store,
		publisher: publisher,
		events:    events,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// RegistrationService returns the registration service instance (singleton)
func (f *ServiceFactory) RegistrationService() *RegistrationService {
	if f.registrationService == nil {
		f.registrationService = NewRegistrationService(
			f.store,
			f.publisher,
			f.events,
			f.clock,
			f.cfg,
			f.logger,
		)
	}
	return f.registrationService
}
