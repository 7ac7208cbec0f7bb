package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/internal/reading"
)

var validate = validator.New()

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(c *fiber.Ctx) error

// RegisterRoutes wires the preference handlers into the Fiber app.
// health may be nil.
func RegisterRoutes(app *fiber.App, store preference.Store, health HealthCheck) {
	app.Get("/health", func(c *fiber.Ctx) error {
		if health != nil {
			if err := health(c); err != nil {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/api/v1")

	v1.Put("/preferences/:userID", func(c *fiber.Ctx) error {
		var req preferenceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		pref := req.toPreference(c.Params("userID"))
		if err := store.SetPreference(c.UserContext(), pref); err != nil {
			return storeError(err, "failed to save preference")
		}

		saved, err := store.GetPreference(c.UserContext(), pref.UserID)
		if err != nil || saved == nil {
			// Written but not readable back; echo what was accepted
			return c.Status(fiber.StatusOK).JSON(pref)
		}
		return c.JSON(saved)
	})

	v1.Get("/preferences/:userID", func(c *fiber.Ctx) error {
		pref, err := store.GetPreference(c.UserContext(), c.Params("userID"))
		if err != nil {
			return storeError(err, "failed to fetch preference")
		}
		if pref == nil {
			return fiber.NewError(fiber.StatusNotFound, "no preference for requested user")
		}
		return c.JSON(pref)
	})

	v1.Get("/locations/:locationKey/preferences", func(c *fiber.Ctx) error {
		locationKey := c.Params("locationKey")
		prefs, err := store.ListByLocation(c.UserContext(), locationKey)
		if err != nil {
			return storeError(err, "failed to list preferences")
		}
		if prefs == nil {
			prefs = []*preference.UserPreference{}
		}
		return c.JSON(fiber.Map{
			"location_key": locationKey,
			"preferences":  prefs,
		})
	})
}

// preferenceRequest is the body of PUT /preferences/:userID
// A present last_alert_at replaces cooldown state; an absent one keeps it.
type preferenceRequest struct {
	LocationKey string               `json:"location_key" validate:"required"`
	Thresholds  map[string]float64   `json:"thresholds" validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
	LastAlertAt map[string]time.Time `json:"last_alert_at"`
}

func (r preferenceRequest) toPreference(userID string) preference.UserPreference {
	thresholds := make(map[reading.Pollutant]float64, len(r.Thresholds))
	for k, v := range r.Thresholds {
		thresholds[reading.Pollutant(k)] = v
	}
	pref := preference.UserPreference{
		UserID:      userID,
		LocationKey: r.LocationKey,
		Thresholds:  thresholds,
	}
	if r.LastAlertAt != nil {
		pref.LastAlertAt = make(map[reading.Pollutant]time.Time, len(r.LastAlertAt))
		for k, v := range r.LastAlertAt {
			pref.LastAlertAt[reading.Pollutant(k)] = v.UTC()
		}
	}
	return pref
}

func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, preference.ErrInvalidPreference):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, preference.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, preference.ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, msg)
	default:
		return fiber.NewError(fiber.StatusInternalServerError, msg)
	}
}
