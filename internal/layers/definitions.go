package layers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"flowmap.citybikes.dev/internal/utils"
)

// Definition selects the flows drawn on one layer: trips departing from any of
// Stations within any of the Times buckets. An empty list selects everything.
type Definition struct {
	Name     string   `json:"name"`
	Stations []int64  `json:"stations"`
	Times    []string `json:"times"`
}

var (
	MorningTimes = []string{"06:00:00", "07:00:00", "08:00:00", "09:00:00", "10:00:00"}
	EveningTimes = []string{"14:00:00", "15:00:00", "16:00:00", "17:00:00", "18:00:00"}
)

var timePattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

// DefaultDefinitions returns the built-in layer set.
func DefaultDefinitions() []Definition {
	herttoniemenranta := []int64{257, 256, 255, 254}
	railwayStation := []int64{19, 22, 21}

	return []Definition{
		{Name: "herttoniemi_morning", Stations: herttoniemenranta, Times: MorningTimes},
		{Name: "herttoniemi_afternoon", Stations: herttoniemenranta, Times: EveningTimes},
		{Name: "steissi_morning", Stations: railwayStation, Times: MorningTimes},
		{Name: "steissi_afternoon", Stations: railwayStation, Times: EveningTimes},
		{Name: "vuosaari", Stations: []int64{317}, Times: MorningTimes},
		{Name: "pajamaki", Stations: []int64{216}, Times: MorningTimes},
		{Name: "tapanila", Stations: []int64{351}, Times: MorningTimes},
	}
}

func (d Definition) Validate() error {
	if err := utils.ValidateID(d.Name); err != nil {
		return fmt.Errorf("layer %q: %w", d.Name, err)
	}
	for _, id := range d.Stations {
		if err := utils.ValidateStationID(id); err != nil {
			return fmt.Errorf("layer %q: %w", d.Name, err)
		}
	}
	for _, t := range d.Times {
		if !timePattern.MatchString(t) {
			return fmt.Errorf("layer %q: time %q is not HH:MM:SS", d.Name, t)
		}
	}
	return nil
}

// LoadDefinitions reads a JSON array of definitions. An empty path yields the
// built-in set.
func LoadDefinitions(path string) ([]Definition, error) {
	if path == "" {
		return DefaultDefinitions(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse layer definitions %s: %w", path, err)
	}
	if len(defs) == 0 {
		return nil, errors.New("layer definitions file is empty")
	}

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("duplicate layer name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return defs, nil
}
