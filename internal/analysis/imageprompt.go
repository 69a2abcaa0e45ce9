package analysis

import "fmt"

// ImagePrompt builds the text-to-image prompt for an idea's illustrative
// showcase image from its title and description.
func ImagePrompt(title, description string) string {
	return fmt.Sprintf(
		"A professional, ultra-high-definition digital product showcase image for an app called %q. "+
			"Theme: %s. Modern UI, vibrant glassmorphism, 3D elements, clean and cinematic.",
		title, description)
}
