package service

import "context"

type IService interface {
	Serve(ctx context.Context) error
}
