package boards

import "gorm.io/gorm"

// ServiceDB exposes the service's database handle to external tests.
func ServiceDB(service *Service) *gorm.DB {
	return service.db
}
