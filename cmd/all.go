package cmd

import (
	_ "service-nanny/cmd/misc"
	_ "service-nanny/cmd/root"
	_ "service-nanny/cmd/server"
	_ "service-nanny/cmd/service"
)
