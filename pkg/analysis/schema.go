package analysis

import (
	"github.com/menta2k/pool-coach/pkg/types"
)

func str(desc string) *types.Schema {
	return &types.Schema{Type: types.TypeString, Description: desc}
}

// ResponseSchema declares the JSON shape the model must return
func ResponseSchema() *types.Schema {
	difficulties := make([]string, 0, 4)
	for _, d := range types.Difficulties() {
		difficulties = append(difficulties, string(d))
	}

	technique := &types.Schema{
		Type: types.TypeObject,
		Properties: map[string]*types.Schema{
			"aiming": str("Where to strike the object ball (e.g., 'Full face', 'Thin cut left')"),
			"spin":   str("Spin to apply to the cue ball (e.g., 'Top spin', 'Screw back', 'Stun', 'Right english')"),
			"power":  str("Power level (e.g., 'Soft', 'Medium', 'Power shot')"),
			"bridge": str("Bridge hand recommendation"),
		},
		Required: []string{"aiming", "spin", "power", "bridge"},
	}

	shot := &types.Schema{
		Type: types.TypeObject,
		Properties: map[string]*types.Schema{
			"targetBallColor":    str("Color of the ball to hit (Red, Yellow, or Black)"),
			"targetBallLocation": str("Where the ball is on the table (e.g., 'Near top right corner')"),
			"difficulty":         {Type: types.TypeString, Enum: difficulties},
			"technique":          technique,
			"reasoning":          str("Why this shot is chosen (e.g., easy pot, good position for next ball)"),
			"nextShotPlan":       str("Where the cue ball aims to end up for the subsequent shot"),
			"confidenceScore":    {Type: types.TypeNumber, Description: "Confidence in this shot, 0-100"},
		},
		Required: []string{"targetBallColor", "targetBallLocation", "difficulty", "technique", "reasoning", "nextShotPlan", "confidenceScore"},
	}

	return &types.Schema{
		Type: types.TypeObject,
		Properties: map[string]*types.Schema{
			"recommendations": {
				Type:        types.TypeArray,
				Description: "Recommended shots, starting with the best option.",
				Items:       shot,
			},
			"generalAdvice": str("General strategic advice based on the table state"),
		},
		Required: []string{"recommendations", "generalAdvice"},
	}
}
