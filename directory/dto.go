package directory

// Wire format of the route search service.

type DistrictDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type StopDTO struct {
	Station   string  `json:"station"`
	Arrival   string  `json:"arrival"`
	Departure *string `json:"departure"`
}

type SegmentDTO struct {
	Line  string    `json:"line"`
	Stops []StopDTO `json:"stops"`
}

type ScheduleDTO struct {
	ID       int          `json:"id"`
	Segments []SegmentDTO `json:"segments"`
}

type PricesDTO struct {
	Economy    float64 `json:"economy"`
	FirstClass float64 `json:"firstClass"`
}

type MergedRouteDTO struct {
	Route         []string      `json:"route"`
	StationsCount int           `json:"stationsCount"`
	Transfer      []string      `json:"transfer"`
	Prices        PricesDTO     `json:"prices"`
	Schedules     []ScheduleDTO `json:"schedules"`
}
