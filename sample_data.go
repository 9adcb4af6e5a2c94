package iotanomaly

import (
	"math/rand"
	"time"
)

// SampleSeed seeds the sample generator so repeated calls return identical data.
const SampleSeed = 42

// sampleAnomalyShare is the share of generated rows that receive an injected fault.
const sampleAnomalyShare = 0.05

// SampleFrame generates n rows of synthetic sensor readings at one-minute spacing.
// About 5% of rows get a temperature shift of 10 to 20 degrees and a power shift of
// 50 to 100 watts, in a random direction. The first row is n/60 hours before now.
func SampleFrame(n int, now time.Time) *Frame {
	if n < 0 {
		n = 0
	}
	rng := rand.New(rand.NewSource(SampleSeed))

	normal := func(mean, std float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = mean + std*rng.NormFloat64()
		}
		return out
	}
	temperature := normal(25, 3)
	humidity := normal(60, 10)
	pressure := normal(1013, 20)
	power := normal(100, 15)

	sign := func() float64 {
		if rng.Intn(2) == 0 {
			return -1
		}
		return 1
	}
	for _, idx := range rng.Perm(n)[:int(float64(n)*sampleAnomalyShare)] {
		temperature[idx] += sign() * (10 + 10*rng.Float64())
		power[idx] += sign() * (50 + 50*rng.Float64())
	}

	start := now.UTC().Truncate(time.Second).Add(-time.Duration(n/60) * time.Hour)
	timestamps := make([]time.Time, n)
	for i := range timestamps {
		timestamps[i] = start.Add(time.Duration(i) * time.Minute)
	}

	return &Frame{
		Columns: []string{"temperature", "humidity", "pressure", "power_consumption"},
		Values: map[string][]float64{
			"temperature":       temperature,
			"humidity":          humidity,
			"pressure":          pressure,
			"power_consumption": power,
		},
		Timestamps: timestamps,
		Encoding:   "utf-8",
	}
}
