package dealer

// Dealer service endpoints, relative to the client base URL.
// These paths are fixed by the remote dealer application service.
const (
	EndpointLogin          = "/authService/100000002/login"
	EndpointVersionControl = "/services/DealerAppService7/VersionControl"
	EndpointGetProperties  = "/services/DealerAppService7/getProperties"
	EndpointSATRefresh     = "/services/USUpdateDeviceSATRefresh/updateDeviceSATRefreshWithPriority"
	EndpointCRMInfo        = "/services/DemoConsumptionRules/GetCRMAccountPlanInformation"
	EndpointDBUpdate       = "/services/DBSuccessUpdate/DBUpdateForGoogle"
	EndpointBlockList      = "/services/USBlockListDevice/BlockListDevice"
	EndpointCreateAccount  = "/services/DealerAppService3/CreateAccount"
	EndpointRefreshForCC   = "/services/USUpdateDeviceRefreshForCC/updateDeviceSATRefreshWithPriority"
)

// DefaultBaseURL is the production dealer application service.
const DefaultBaseURL = "https://dealerapp.siriusxm.com"

// DefaultOracleURL is the production program-status backend.
// This is a second backend with an absolute URL; it does not live
// under the dealer base URL.
const DefaultOracleURL = "https://oemremarketing.custhelp.com/cgi-bin/oemremarketing.cfg/php/custom/src/oracle/program_status.php"
