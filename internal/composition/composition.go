// Package composition estimates body composition from a weight and a
// bioimpedance reading using a fixed regression on height²/impedance.
package composition

const (
	coeffH2R    = -0.76086
	coeffWeight = 0.49385
	coeffAge    = -0.00686
	coeffMale   = -5.28771
	constant    = 31.72188

	athleteFactor = 0.85

	minBodyFat = 3.0
	maxBodyFat = 70.0

	leanWaterRatio = 0.72
	boneRateMale   = 0.042
	boneRateFemale = 0.036

	minMetabolicAge = 18
	maxMetabolicAge = 80
	referenceAge    = 25
)

type Profile struct {
	HeightCm int  `json:"height_cm"`
	Age      int  `json:"age"`
	Male     bool `json:"male"`
	Athlete  bool `json:"athlete"`
}

// DefaultProfile is used until a profile has been saved.
func DefaultProfile() Profile {
	return Profile{HeightCm: 170, Age: 30, Male: true}
}

type Composition struct {
	BMI          float64 `json:"bmi"`
	BodyFat      float64 `json:"body_fat_pct"`
	Water        float64 `json:"water_pct"`
	Muscle       float64 `json:"muscle_kg"`
	BoneMass     float64 `json:"bone_kg"`
	MetabolicAge int     `json:"metabolic_age"`
	BMR          int     `json:"bmr_kcal"`
}

// Compute derives the composition. When impedance, weight or height is not
// positive only BMI is filled in.
func Compute(weightKg, impedance float64, p Profile) Composition {
	heightM := float64(p.HeightCm) / 100
	var bmi float64
	if heightM > 0 {
		bmi = weightKg / (heightM * heightM)
	}

	if impedance <= 0 || weightKg <= 0 || p.HeightCm <= 0 {
		return Composition{BMI: bmi}
	}

	height := float64(p.HeightCm)
	age := float64(p.Age)
	male := 0.0
	if p.Male {
		male = 1
	}

	bodyFat := (height*height/impedance)*coeffH2R +
		weightKg*coeffWeight +
		age*coeffAge +
		male*coeffMale +
		constant
	if p.Athlete {
		bodyFat *= athleteFactor
	}
	bodyFat = min(max(bodyFat, minBodyFat), maxBodyFat)

	boneRate := boneRateFemale
	if p.Male {
		boneRate = boneRateMale
	}

	bmr := int(mifflinStJeor(weightKg, height, age, p.Male))
	reference := mifflinStJeor(weightKg, height, referenceAge, p.Male)

	var metabolicAge int
	if float64(bmr) > reference {
		metabolicAge = max(int(age-(float64(bmr)-reference)/20), minMetabolicAge)
	} else {
		metabolicAge = min(int(age+(reference-float64(bmr))/20), maxMetabolicAge)
	}

	return Composition{
		BMI:          bmi,
		BodyFat:      bodyFat,
		Water:        (100 - bodyFat) * leanWaterRatio,
		Muscle:       weightKg - weightKg*bodyFat/100,
		BoneMass:     weightKg * boneRate,
		MetabolicAge: metabolicAge,
		BMR:          bmr,
	}
}

func mifflinStJeor(weightKg, heightCm, age float64, male bool) float64 {
	base := 10*weightKg + 6.25*heightCm - 5*age
	if male {
		return base + 5
	}
	return base - 161
}

type BMICategory string

const (
	Underweight BMICategory = "Underweight"
	Normal      BMICategory = "Normal"
	Overweight  BMICategory = "Overweight"
	Obese       BMICategory = "Obese"
)

func (c Composition) BMICategory() BMICategory {
	switch {
	case c.BMI < 18.5:
		return Underweight
	case c.BMI < 25:
		return Normal
	case c.BMI < 30:
		return Overweight
	default:
		return Obese
	}
}

func (c Composition) BodyFatCategory(male bool) string {
	bounds := [4]float64{14, 21, 25, 32}
	if male {
		bounds = [4]float64{6, 14, 18, 25}
	}
	switch {
	case c.BodyFat < bounds[0]:
		return "Essential"
	case c.BodyFat < bounds[1]:
		return "Athletic"
	case c.BodyFat < bounds[2]:
		return "Fitness"
	case c.BodyFat < bounds[3]:
		return "Average"
	default:
		return "Obese"
	}
}
