package analysis

import (
	"fmt"
	"strings"

	"github.com/menta2k/pool-coach/pkg/types"
)

const (
	competitionPersona = "You are a professional Billiards Coach. Use technical terms like 'tangent lines', 'deflection', and 'safety play'. Be precise and cold."
	casualPersona      = "You are a friendly, witty Bar Buddy at a local pool hall. Use puns, be encouraging, and keep the advice simple. Act like you're leaning over the table with a drink in your hand."

	competitionSystem = "Master level pool instructor. Focus on physics and run-outs."
	casualSystem      = "Fun-loving pool hall regular. Focus on easy wins and good vibes."
)

// Persona returns the tone directive for a mode
func Persona(mode types.Mode) string {
	if mode == types.ModeCompetition {
		return competitionPersona
	}
	return casualPersona
}

// SystemInstruction returns the system-level persona sent with the request
func SystemInstruction(mode types.Mode) string {
	if mode == types.ModeCompetition {
		return competitionSystem
	}
	return casualSystem
}

// BuildPrompt composes the user instruction for one photo
func BuildPrompt(params types.AnalysisParameters) string {
	var b strings.Builder

	b.WriteString("Analyze this 8-ball pool table image.\n")
	b.WriteString("Identify the white cue ball and the object balls (Red/Yellow/Black) clearly.\n\n")

	fmt.Fprintf(&b, "Player is shooting for: %s.\n", params.Suit)
	if params.Suit == types.SuitOpen {
		b.WriteString("The table is open. Suggest the easiest ball to pot to take control of a suit.\n")
	} else {
		fmt.Fprintf(&b, "Focus ONLY on potting balls of the '%s' suit (or the Black 8-ball if the suit looks cleared).\n", params.Suit)
	}

	if params.Foul {
		b.WriteString("Special State: The opponent fouled! The player has ball-in-hand or TWO SHOTS. " +
			"Tell them, and use the advantage to clear difficult balls, break clusters, or play a more aggressive shot.\n")
	} else {
		b.WriteString("Special State: Normal play.\n")
	}

	b.WriteString("\nGOAL: Suggest the best 2-3 shots, ranked with the best option first.\n")
	b.WriteString("For each shot give:\n")
	b.WriteString("1. The target ball and where it sits on the table.\n")
	b.WriteString("2. Exactly how to play it: aim point, spin/english, power, and bridge.\n")
	b.WriteString("3. Why this shot, and where the cue ball should end up for the NEXT shot.\n")
	b.WriteString("4. A confidence score from 0 to 100.\n\n")

	fmt.Fprintf(&b, "PERSONALITY: %s\n\n", Persona(params.Mode))

	b.WriteString("If the image is a bit blurry, give it your best shot anyway! ")
	b.WriteString("If no shot is viable, return an empty recommendations list and explain why in generalAdvice.\n")
	b.WriteString("Return the response in the requested JSON format.")

	return b.String()
}
