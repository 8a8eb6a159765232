package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

type flight struct {
	ID        string
	Airline   string
	Price     int
	Duration  string
	Departure string
}

type hotel struct {
	ID            string
	Name          string
	PricePerNight int
	Rating        float64
}

type weather struct {
	Condition   string
	Temperature string
	Humidity    string
}

var flights = []flight{
	{"FL001", "SkyAir", 299, "2h 15m", "08:30"},
	{"FL002", "CloudJet", 389, "2h 45m", "14:20"},
	{"FL003", "AirExpress", 450, "1h 50m", "18:45"},
	{"FL004", "QuickFly", 325, "3h 10m", "11:05"},
}

var hotels = []hotel{
	{"HT001", "Grand Plaza Hotel", 120, 4.5},
	{"HT002", "City Center Inn", 89, 4.2},
	{"HT003", "Luxury Suites", 250, 4.8},
	{"HT004", "Budget Stay", 65, 3.9},
}

var forecasts = []weather{
	{"Sunny", "22°C", "45%"},
	{"Partly Cloudy", "18°C", "60%"},
	{"Rainy", "15°C", "85%"},
	{"Clear", "25°C", "40%"},
}

// pick returns a stable index in [0, n) for key.
func pick(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(key)))
	return int(h.Sum32() % uint32(n))
}

func (f flight) fields() map[string]any {
	return map[string]any{
		"flight_id": f.ID,
		"airline":   f.Airline,
		"price":     f.Price,
		"duration":  f.Duration,
		"departure": f.Departure,
	}
}

func (h hotel) fields() map[string]any {
	return map[string]any{
		"hotel_id":        h.ID,
		"name":            h.Name,
		"price_per_night": h.PricePerNight,
		"rating":          h.Rating,
	}
}

// SearchFlights lists the available flights for a route.
func SearchFlights(_ context.Context, args Args) (map[string]any, error) {
	origin, destination, date := args.String("origin"), args.String("destination"), args.String("date")
	options := make([]map[string]any, 0, 3)
	for _, f := range flights[:3] {
		options = append(options, f.fields())
	}
	return map[string]any{
		"status":         "success",
		"route":          fmt.Sprintf("%s to %s", origin, destination),
		"date":           date,
		"flight_options": options,
		"message":        fmt.Sprintf("Found %d flights from %s to %s on %s", len(options), origin, destination, date),
	}, nil
}

// BookFlight books a flight. The flight is chosen deterministically from the route.
func BookFlight(_ context.Context, args Args) (map[string]any, error) {
	origin, destination, date := args.String("origin"), args.String("destination"), args.String("date")
	h := pick(origin+"_"+destination, len(flights))
	booked := flights[h].fields()
	booked["origin"] = origin
	booked["destination"] = destination
	booked["date"] = date
	return map[string]any{
		"status":     "success",
		"booking_id": fmt.Sprintf("BK%d", h+1000),
		"flight":     booked,
		"message":    fmt.Sprintf("Flight booked successfully from %s to %s on %s", origin, destination, date),
	}, nil
}

// SearchHotels lists the available hotels in a city.
func SearchHotels(_ context.Context, args Args) (map[string]any, error) {
	destination, days := args.String("destination"), args.String("days")
	options := make([]map[string]any, 0, len(hotels))
	for _, h := range hotels {
		options = append(options, h.fields())
	}
	return map[string]any{
		"status":        "success",
		"destination":   destination,
		"days":          days,
		"hotel_options": options,
		"message":       fmt.Sprintf("Found %d hotels in %s for %s days", len(options), destination, days),
	}, nil
}

// BookHotel books a hotel. A days value that is not a number is reported
// in the result payload with status "error".
func BookHotel(_ context.Context, args Args) (map[string]any, error) {
	destination, raw := args.String("destination"), args.String("days")
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Invalid number of days: %s", raw),
		}, nil
	}

	h := pick(destination, len(hotels))
	booked := hotels[h].fields()
	booked["city"] = destination
	booked["days"] = days
	booked["total_price"] = hotels[h].PricePerNight * days
	return map[string]any{
		"status":     "success",
		"booking_id": fmt.Sprintf("HB%d", h+2000),
		"hotel":      booked,
		"message":    fmt.Sprintf("Hotel booked successfully in %s for %d days", destination, days),
	}, nil
}

// GetWeather returns the forecast for a destination and date.
func GetWeather(_ context.Context, args Args) (map[string]any, error) {
	destination, date := args.String("destination"), args.String("date")
	w := forecasts[pick(destination, len(forecasts))]
	return map[string]any{
		"status":      "success",
		"destination": destination,
		"date":        date,
		"weather": map[string]any{
			"condition":   w.Condition,
			"temperature": w.Temperature,
			"humidity":    w.Humidity,
		},
		"message": fmt.Sprintf("Weather in %s on %s: %s, %s", destination, date, w.Condition, w.Temperature),
	}, nil
}

// Travel returns a toolbox with the travel tools registered.
func Travel() *Toolbox {
	b := NewToolbox()
	b.Register("search_flights", Func(SearchFlights))
	b.Register("book_flight", Func(BookFlight))
	b.Register("search_hotels", Func(SearchHotels))
	b.Register("book_hotel", Func(BookHotel))
	b.Register("get_weather", Func(GetWeather))
	return b
}
