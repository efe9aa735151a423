package resolver

import "context"

// fallbackService tries each service in order and returns the first
// successful resolution. The last service's error is surfaced when all fail.
type fallbackService struct {
	services []Service
}

// Fallback combines several services into one. Builds use this to layer
// built-in loader lookup in front of filesystem resolution.
func Fallback(services ...Service) Service {
	return &fallbackService{services: services}
}

func (f *fallbackService) Resolve(ctx context.Context, baseDir, name string) (string, error) {
	var lastErr error
	for _, service := range f.services {
		path, err := service.Resolve(ctx, baseDir, name)
		if err == nil {
			return path, nil
		}
		lastErr = err
	}
	return "", lastErr
}
