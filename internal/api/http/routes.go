package httpapi

import (
	"bufio"
	"errors"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/city-weather/internal/events"
	"github.com/i474232898/city-weather/internal/logger"
	"github.com/i474232898/city-weather/internal/weather"
)

var validate = validator.New()

// keepAlive is how often an idle event stream receives a comment frame.
var keepAlive = 25 * time.Second

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, hub *events.Hub) {
	v1 := app.Group("/api/v1")

	v1.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(service.Cities())
	})

	v1.Post("/cities", func(c *fiber.Ctx) error {
		var req addCityRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, weather.ErrEmptyName.Error())
		}

		city, added, err := service.AddCity(c.UserContext(), req.Name)
		if err != nil {
			return toHTTPError(err)
		}

		view, ok := service.City(city.ID)
		if !ok {
			view = weather.CityView{City: city}
		}
		status := fiber.StatusOK
		if added {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(view)
	})

	v1.Get("/cities/:id", func(c *fiber.Ctx) error {
		id, err := cityID(c)
		if err != nil {
			return err
		}
		view, ok := service.City(id)
		if !ok {
			return toHTTPError(weather.ErrUnknownCity)
		}
		return c.JSON(view)
	})

	v1.Delete("/cities/:id", func(c *fiber.Ctx) error {
		id, err := cityID(c)
		if err != nil {
			return err
		}
		service.RemoveCity(id)
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Post("/cities/:id/refresh", func(c *fiber.Ctx) error {
		id, err := cityID(c)
		if err != nil {
			return err
		}
		if err := service.Refresh(id); err != nil {
			return toHTTPError(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Post("/cities/:id/forecast/refresh", func(c *fiber.Ctx) error {
		id, err := cityID(c)
		if err != nil {
			return err
		}
		if err := service.RefreshForecast(id); err != nil {
			return toHTTPError(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Delete("/cities/:id/error", func(c *fiber.Ctx) error {
		id, err := cityID(c)
		if err != nil {
			return err
		}
		if _, ok := service.City(id); !ok {
			return toHTTPError(weather.ErrUnknownCity)
		}
		service.ClearError(id)
		return c.SendStatus(fiber.StatusNoContent)
	})

	v1.Get("/events", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		clientID := uuid.NewString()
		msgs := hub.Subscribe(clientID)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer hub.Unsubscribe(clientID)
			hello := events.Message{ID: uuid.NewString(), Type: events.KindConnected, Data: fiber.Map{"clientId": clientID}, Timestamp: time.Now().UTC()}
			if err := events.WriteSSE(w, hello); err != nil || w.Flush() != nil {
				return
			}
			streamEvents(w, msgs, keepAlive)
			logger.Named("http").Debug().Str("client_id", clientID).Msg("event stream closed")
		}))
		return nil
	})
}

// ErrorHandler renders every handler error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		logger.Named("http").Error().Err(err).Str("path", c.Path()).Int("status", code).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// streamEvents copies msgs to w until the channel closes or the client goes
// away, writing a comment frame whenever the stream has been idle.
func streamEvents(w *bufio.Writer, msgs <-chan events.Message, idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := events.WriteSSE(w, msg); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := w.WriteString(": keepalive\n\n"); err != nil {
				return
			}
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// toHTTPError maps service and gateway errors onto HTTP statuses.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, weather.ErrEmptyName):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrNotFound), errors.Is(err, weather.ErrUnknownCity):
		return fiber.NewError(fiber.StatusNotFound, weather.Message(err))
	case errors.Is(err, weather.ErrConfig):
		return fiber.NewError(fiber.StatusServiceUnavailable, weather.Message(err))
	case errors.Is(err, weather.ErrUpstream):
		return fiber.NewError(fiber.StatusBadGateway, weather.Message(err))
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
}

// addCityRequest is the body of POST /cities.
type addCityRequest struct {
	Name string `json:"name" validate:"required"`
}

func cityID(c *fiber.Ctx) (string, error) {
	id, err := url.PathUnescape(c.Params("id"))
	if err != nil || id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid city id")
	}
	return id, nil
}
