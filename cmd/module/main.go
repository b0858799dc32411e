package main

import (
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"

	"markertracker/models"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: models.MarkerTracker},
		resource.APIModel{API: camera.API, Model: models.OverlayCamera},
	)
}
