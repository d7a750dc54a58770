package domain

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
)

// feedRootKey holds the date-keyed records in a full NeoWs feed response.
const feedRootKey = "near_earth_objects"

const hazardousKey = "is_potentially_hazardous_asteroid"

// ParseFeed flattens a NeoWs feed document into NearEarthObjects.
//
// doc may be the full feed response or the bare date-keyed object. Date keys
// are visited in ascending order and records keep their array order within a
// date. The first malformed record fails the whole batch with an error that
// matches ErrMalformedRecord.
func ParseFeed(doc []byte) ([]NearEarthObject, error) {
	root, err := jason.NewObjectFromBytes(doc)
	if err != nil {
		return nil, &MalformedRecordError{Field: "document", Err: err}
	}
	if nested, err := root.GetObject(feedRootKey); err == nil {
		root = nested
	}

	byDate := root.Map()
	dates := make([]string, 0, len(byDate))
	for key := range byDate {
		if IsDate(key) {
			dates = append(dates, key)
		}
	}
	slices.Sort(dates)

	var out []NearEarthObject
	for _, date := range dates {
		records, err := root.GetObjectArray(date)
		if err != nil {
			return nil, &MalformedRecordError{Date: date, Field: date, Err: err}
		}
		for i, rec := range records {
			neo, err := parseRecord(date, rec)
			if err != nil {
				var mre *MalformedRecordError
				if errors.As(err, &mre) {
					mre.Date, mre.Index = date, i
				}
				return nil, err
			}
			out = append(out, neo)
		}
	}
	return out, nil
}

// parseRecord extracts one record. CloseApproachDate always comes from the
// enclosing date key, never from the record body.
func parseRecord(date string, rec *jason.Object) (NearEarthObject, error) {
	id, err := stringAt(rec, "id")
	if err != nil {
		return NearEarthObject{}, &MalformedRecordError{Field: "id", Err: err}
	}
	fail := func(field string, err error) (NearEarthObject, error) {
		return NearEarthObject{}, &MalformedRecordError{ID: id, Field: field, Err: err}
	}

	name, err := rec.GetString("name")
	if err != nil {
		return fail("name", err)
	}

	magnitude, err := floatAt(rec, "absolute_magnitude_h")
	if err != nil {
		return fail("absolute_magnitude_h", err)
	}

	diameter, err := floatAt(rec, "estimated_diameter", "kilometers", "estimated_diameter_max")
	if err != nil {
		return fail("estimated_diameter.kilometers", err)
	}

	approaches, err := rec.GetObjectArray("close_approach_data")
	if err != nil {
		return fail("close_approach_data", err)
	}
	if len(approaches) == 0 {
		return fail("close_approach_data", errors.New("empty array"))
	}
	first := approaches[0]

	velocity, err := floatAt(first, "relative_velocity", "kilometers_per_second")
	if err != nil {
		return fail("close_approach_data[0].relative_velocity.kilometers_per_second", err)
	}

	distance, err := floatAt(first, "miss_distance", "astronomical")
	if err != nil {
		return fail("close_approach_data[0].miss_distance.astronomical", err)
	}

	// Absent or null means not hazardous; any other non-boolean is malformed.
	var hazardous bool
	if _, present := rec.Map()[hazardousKey]; present && rec.GetNull(hazardousKey) != nil {
		hazardous, err = rec.GetBoolean(hazardousKey)
		if err != nil {
			return fail(hazardousKey, err)
		}
	}

	raw, err := rec.Marshal()
	if err != nil {
		return fail("record", err)
	}

	return NearEarthObject{
		ID:                   id,
		Name:                 name,
		CloseApproachDate:    date,
		AbsoluteMagnitude:    magnitude,
		EstimatedDiameterKm:  diameter,
		RelativeVelocityKmS:  velocity,
		MissDistanceAU:       distance,
		PotentiallyHazardous: hazardous,
		RawPayload:           raw,
	}, nil
}

// floatAt reads a number that NeoWs may encode either as a JSON number or as a
// numeric string.
func floatAt(obj *jason.Object, keys ...string) (float64, error) {
	if n, err := obj.GetNumber(keys...); err == nil {
		return n.Float64()
	}
	s, err := obj.GetString(keys...)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	return v, nil
}

// stringAt reads a string, accepting a bare JSON number as its literal text.
func stringAt(obj *jason.Object, keys ...string) (string, error) {
	if n, err := obj.GetNumber(keys...); err == nil {
		return n.String(), nil
	}
	return obj.GetString(keys...)
}
