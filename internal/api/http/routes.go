package httpapi

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/prism-archive/internal/climate"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *climate.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/assets/:variable/:date", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		asset, ok, err := service.Lookup(c.UserContext(), key.variable, key.date)
		if err != nil {
			return toFiberError(c, err)
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no resolved asset for requested date")
		}
		return c.JSON(asset)
	})

	v1.Post("/assets/:variable/:date/fetch", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := service.Fetch(c.UserContext(), key.variable, key.date)
		if err != nil {
			return toFiberError(c, err)
		}
		status := fiber.StatusOK
		if res.Outcome == climate.FetchInstalled {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(res)
	})

	v1.Post("/products/:variable/:date", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		var q productQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		red, err := climate.ParseReduction(q.Reduction)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		p, err := service.Aggregate(c.UserContext(), climate.AggregateRequest{
			Variable:  key.variable,
			Date:      key.date,
			Days:      q.Days,
			Reduction: red,
		})
		if err != nil {
			return toFiberError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	v1.Get("/products/:variable/:date", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		var q productQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		red, err := climate.ParseReduction(q.Reduction)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		p, err := service.Product(key.variable, key.date, red, q.Days)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fiber.NewError(fiber.StatusNotFound, "product has not been computed")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read product")
		}
		stale, err := service.Stale(c.UserContext(), p)
		if err != nil {
			return toFiberError(c, err)
		}
		return c.JSON(fiber.Map{
			"product": p,
			"stale":   stale,
		})
	})

	v1.Post("/daily/:variable/:date", func(c *fiber.Ctx) error {
		key, err := parseKey(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		path, err := service.DailyProduct(c.UserContext(), key.variable, key.date)
		if err != nil {
			return toFiberError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"path": path})
	})
}

// toFiberError maps domain errors onto HTTP statuses.
func toFiberError(c *fiber.Ctx, err error) error {
	var incomplete *climate.IncompleteWindowError
	switch {
	case errors.As(err, &incomplete):
		missing := make([]string, 0, len(incomplete.Missing))
		for _, d := range incomplete.Missing {
			missing = append(missing, d.Format(time.DateOnly))
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    true,
			"message":  err.Error(),
			"found":    incomplete.Found,
			"required": incomplete.Required,
			"missing":  missing,
		})
	case errors.Is(err, climate.ErrInvalidArgument):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, climate.ErrNoCandidate), errors.Is(err, climate.ErrNotInstalled):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, climate.ErrTransfer):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

// keyParams holds the path parameters identifying a (variable, date).
type keyParams struct {
	Variable string `validate:"required,oneof=ppt tmin tmax"`
	Date     string `validate:"required"`

	variable climate.Variable
	date     time.Time
}

func parseKey(c *fiber.Ctx) (keyParams, error) {
	var k keyParams

	k.Variable = strings.ToLower(c.Params("variable"))
	k.Date = c.Params("date")

	if err := validate.Struct(k); err != nil {
		return k, err
	}

	date, err := parseDate(k.Date)
	if err != nil {
		return k, err
	}
	k.variable = climate.Variable(k.Variable)
	k.date = date
	return k, nil
}

// productQuery holds query parameters for the product endpoints.
type productQuery struct {
	Days      int    `validate:"gte=0,lte=366"`
	Reduction string `validate:"omitempty,oneof=sum mean min max"`
}

func (q *productQuery) bind(c *fiber.Ctx) error {
	if s := c.Query("days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil {
			return errors.New("days must be an integer")
		}
		if days < 1 {
			return errors.New("days must be at least 1")
		}
		q.Days = days
	}
	q.Reduction = strings.ToLower(c.Query("reduction"))
	return validate.Struct(q)
}

// parseDate accepts either 2006-01-02 or the archive's 20060102.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(climate.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("invalid date format; use YYYY-MM-DD or YYYYMMDD")
}
