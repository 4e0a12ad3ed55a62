package middleware

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/AgenticFinLab/FinMycelium/internal/storage"
	"github.com/AgenticFinLab/FinMycelium/pkg/store"
)

// App bundles the shared backends every handler needs.
type App struct {
	DBConn    *pgxpool.Pool
	Queue     *amqp091.Channel
	Documents *storage.DocumentStore
	Store     store.CascadeStorage
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(
	db *pgxpool.Pool,
	queue *amqp091.Channel,
	documents *storage.DocumentStore,
	cascadeStore store.CascadeStorage,
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			app := &App{
				DBConn:    db,
				Queue:     queue,
				Documents: documents,
				Store:     cascadeStore,
			}
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
