/*
Package tool describes the tools a model may call during a completion.

A tool is a name, a description and JSON schemas for its input and output.
Schemas are generated from Go types through reflection, so the same struct that
a caller decodes tool input into also documents it to the model.

# Defining tools

	type WeatherInput struct {
	    City string `json:"city" jsonschema:"description=City name"`
	}

	weather := tool.Must("get_weather",
	    tool.Description("Current weather for a city"),
	    tool.InputOf[WeatherInput](),
	)

# Tool sets

Providers receive tools as an ordered Set. Insertion order is preserved on the
wire and adding a tool whose name is already present replaces the previous
definition in place.
*/
package tool
