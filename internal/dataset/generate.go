package dataset

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	salesRegions    = []string{"north", "south", "east", "west"}
	salesCategories = []string{"electronics", "clothing", "food", "home"}

	regionFactor   = map[string]float64{"north": 1.2, "south": 0.9, "east": 1.0, "west": 1.1}
	categoryFactor = map[string]float64{"electronics": 1.5, "clothing": 1.2, "food": 0.8, "home": 1.0}

	// promotions boost sales for three days, fading by 100 per day.
	promotions = []time.Time{
		time.Date(2023, time.February, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.June, 18, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.November, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.December, 12, 0, 0, 0, 0, time.UTC),
	}
)

// GenerateSales builds a deterministic daily sales table for the given
// number of days starting 2023-01-01: one row per day, region and product
// category, with yearly seasonality, a weekend lift and promotion spikes.
func GenerateSales(days int, seed uint64) dataframe.DataFrame {
	src := rand.NewPCG(seed, seed)
	noise := distuv.Normal{Mu: 0, Sigma: 100, Src: src}
	jitter := distuv.Uniform{Min: 0.9, Max: 1.1, Src: src}
	costShare := distuv.Uniform{Min: 0.5, Max: 0.7, Src: src}
	basket := distuv.Uniform{Min: 50, Max: 150, Src: src}

	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	promo := make(map[string]float64)
	for _, p := range promotions {
		for i := range 3 {
			promo[p.AddDate(0, 0, i).Format(time.DateOnly)] = float64(500 - 100*i)
		}
	}

	var (
		dates, regions, categories []string
		amounts, costs, profits    []float64
		customers, promoted, wkend []int
	)
	for d := range days {
		day := start.AddDate(0, 0, d)
		key := day.Format(time.DateOnly)
		weekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday

		base := 1000 + noise.Rand() + 300*math.Sin(float64(d)*2*math.Pi/365)
		if weekend {
			base += 150
		}
		base += promo[key]

		for _, region := range salesRegions {
			for _, category := range salesCategories {
				amount := base * regionFactor[region] * categoryFactor[category] * jitter.Rand()
				cost := amount * costShare.Rand()

				dates = append(dates, key)
				regions = append(regions, region)
				categories = append(categories, category)
				amounts = append(amounts, round2(amount))
				costs = append(costs, round2(cost))
				profits = append(profits, round2(amount-cost))
				customers = append(customers, int(amount/basket.Rand()))
				promoted = append(promoted, boolInt(promo[key] > 0))
				wkend = append(wkend, boolInt(weekend))
			}
		}
	}

	return dataframe.New(
		series.New(dates, series.String, "date"),
		series.New(regions, series.String, "region"),
		series.New(categories, series.String, "category"),
		series.New(amounts, series.Float, "sales"),
		series.New(costs, series.Float, "cost"),
		series.New(profits, series.Float, "profit"),
		series.New(customers, series.Int, "customers"),
		series.New(promoted, series.Int, "promotion"),
		series.New(wkend, series.Int, "weekend"),
	)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
