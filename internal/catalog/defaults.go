package catalog

// defaultTools is the built-in travel tool set.
var defaultTools = []ToolSpec{
	{
		Name:        "search_flights",
		Description: "Search for available flights",
		Parameters:  []string{"origin", "destination", "date"},
		Returns:     "flight_options",
	},
	{
		Name:        "book_flight",
		Description: "Book a flight with origin, destination, and date",
		Parameters:  []string{"origin", "destination", "date"},
		Requires:    []string{"flight_options"},
		Returns:     "booking_confirmation",
	},
	{
		Name:        "search_hotels",
		Description: "Search for available hotels",
		Parameters:  []string{"destination", "days"},
		Returns:     "hotel_options",
	},
	{
		Name:        "book_hotel",
		Description: "Book a hotel with destination and number of days",
		Parameters:  []string{"destination", "days"},
		Requires:    []string{"hotel_options"},
		Returns:     "hotel_booking",
	},
	{
		Name:        "get_weather",
		Description: "Get weather information for a destination and date",
		Parameters:  []string{"destination", "date"},
		Returns:     "weather_info",
	},
}

var defaultIntents = []IntentSpec{
	{
		Name:        "book_flight",
		Description: "Book airline tickets",
		Tools:       []string{"search_flights", "book_flight"},
		Parameters: []ParamSpec{
			{Name: "origin", Type: TypeString, Required: true, Description: "Departure city or airport",
				Question: "Which city or airport are you departing from?"},
			{Name: "destination", Type: TypeString, Required: true, Description: "Arrival city or airport",
				Question: "Where would you like to fly to?"},
			{Name: "date", Type: TypeDate, Required: true, Description: "Travel date",
				Question: "What date would you like to travel?"},
		},
		Keywords: []string{
			"book flight", "flight booking", "airline ticket", "plane ticket",
			"fly to", "flight to", "book airplane", "air travel",
		},
	},
	{
		Name:        "book_hotel",
		Description: "Book hotel accommodation",
		Tools:       []string{"search_hotels", "book_hotel"},
		Parameters: []ParamSpec{
			{Name: "destination", Type: TypeString, Required: true, Description: "City for the hotel",
				Question: "Which city do you need a hotel in?"},
			{Name: "days", Type: TypeInt, Required: true, Description: "Number of nights",
				Question: "How many days will you be staying?"},
		},
		Keywords: []string{
			"book hotel", "hotel booking", "hotel room", "accommodation",
			"stay in", "hotel in", "reserve hotel",
		},
	},
	{
		Name:        "plan_vacation",
		Description: "Plan a complete vacation with flights, hotel, and weather",
		Tools:       []string{"search_flights", "search_hotels", "get_weather", "book_flight", "book_hotel"},
		Parameters: []ParamSpec{
			{Name: "origin", Type: TypeString, Required: true, Description: "Departure city",
				Question: "Where are you traveling from?"},
			{Name: "destination", Type: TypeString, Required: true, Description: "Vacation destination",
				Question: "Where would you like to go on vacation?"},
			{Name: "date", Type: TypeDate, Required: true, Description: "Start date",
				Question: "When would you like to start your vacation?"},
			{Name: "days", Type: TypeInt, Required: true, Description: "Length of stay in days",
				Question: "How many days will your vacation be?"},
		},
		Keywords: []string{
			"plan vacation", "vacation planning", "trip planning", "holiday planning",
			"organize trip", "plan trip", "vacation package", "plan my vacation",
		},
	},
}

// Default returns the built-in travel catalogue.
func Default() *Registry {
	r, err := New(defaultIntents, defaultTools)
	if err != nil {
		panic("catalog: invalid built-in catalogue: " + err.Error())
	}
	return r
}
