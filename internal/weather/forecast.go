package weather

import (
	"sort"
	"time"
)

// HourlySample is one sub-daily reading from a provider that reports
// forecasts in hourly (or 3-hourly) steps.
type HourlySample struct {
	Timestamp    time.Time
	TempC        float64
	FeelsLikeC   float64
	HumidityPct  float64
	PressureHpa  float64
	WindSpeedMS  float64
	WindDirDeg   float64
	CloudPct     float64
	VisibilityKM float64
	PrecipMM     float64
	PrecipProb   float64 // 0..100
	Condition    Condition
	Description  string
}

// AggregateHourly buckets sub-daily samples into calendar days (UTC) and
// reduces each bucket to one ForecastDay: extremes for temperatures,
// means for the ambient fields, sums for precipitation, and the majority
// condition (first seen wins a tie).
func AggregateHourly(loc Location, samples []HourlySample, capturedAt time.Time) ForecastSet {
	buckets := make(map[string][]HourlySample)
	for _, s := range samples {
		k := s.Timestamp.UTC().Format("2006-01-02")
		buckets[k] = append(buckets[k], s)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	days := make([]ForecastDay, 0, len(keys))
	for _, k := range keys {
		date, _ := time.Parse("2006-01-02", k)
		days = append(days, reduceDay(date, buckets[k]))
	}

	return ForecastSet{
		Location:   loc,
		Days:       days,
		CapturedAt: capturedAt.UTC(),
	}
}

func reduceDay(date time.Time, samples []HourlySample) ForecastDay {
	day := ForecastDay{
		Date:      date,
		Condition: ConditionUnknown,
		TempHighC: samples[0].TempC,
		TempLowC:  samples[0].TempC,
	}

	var (
		sumHumidity float64
		sumPressure float64
		sumWind     float64
		sumWindDir  float64
		sumCloud    float64
		sumVis      float64
		sumFeels    float64
		maxProb     float64
	)
	conditionCounts := make(map[Condition]int)
	conditionOrder := make([]Condition, 0, len(samples))

	for _, s := range samples {
		if s.TempC > day.TempHighC {
			day.TempHighC = s.TempC
		}
		if s.TempC < day.TempLowC {
			day.TempLowC = s.TempC
		}
		sumHumidity += s.HumidityPct
		sumPressure += s.PressureHpa
		sumWind += s.WindSpeedMS
		sumWindDir += s.WindDirDeg
		sumCloud += s.CloudPct
		sumVis += s.VisibilityKM
		sumFeels += s.FeelsLikeC
		day.PrecipMM += s.PrecipMM
		if s.PrecipProb > maxProb {
			maxProb = s.PrecipProb
		}

		if _, seen := conditionCounts[s.Condition]; !seen {
			conditionOrder = append(conditionOrder, s.Condition)
		}
		conditionCounts[s.Condition]++

		if day.Description == "" && s.Description != "" {
			day.Description = s.Description
		}
	}

	n := float64(len(samples))
	day.HumidityPct = sumHumidity / n
	day.PressureHpa = sumPressure / n
	day.WindSpeedMS = sumWind / n
	day.WindDirDeg = sumWindDir / n
	day.CloudCoverPct = sumCloud / n
	day.VisibilityKM = sumVis / n
	day.FeelsLikeC = sumFeels / n
	day.PrecipChancePct = maxProb

	best := 0
	for _, cond := range conditionOrder {
		if conditionCounts[cond] > best {
			best = conditionCounts[cond]
			day.Condition = cond
		}
	}

	return day
}
