// internal/auth/locators.go
package auth

import "github.com/AngelRodriguez8008/EasyRepro/internal/driver"

// Locators are the login-page elements the state machine looks for.
type Locators struct {
	UserID            driver.Locator
	Password          driver.Locator
	OneTimeCode       driver.Locator
	UseAnotherAccount driver.Locator
	FederationTile    driver.Locator
	StaySignedIn      driver.Locator
	// LandingMarker is present only once the application shell has loaded.
	LandingMarker driver.Locator
	SubmitButton  driver.Locator
}

// DefaultLocators targets the Microsoft identity platform sign-in pages and
// the Dynamics 365 application shell.
func DefaultLocators() Locators {
	return Locators{
		UserID:            driver.XPath("Login_UserId", "//input[@type='email']"),
		Password:          driver.XPath("Login_Password", "//input[@type='password']"),
		OneTimeCode:       driver.XPath("Login_OneTimeCode", "//input[@name='otc']"),
		UseAnotherAccount: driver.ID("Login_UseAnotherAccount", "use_another_account_link"),
		FederationTile:    driver.ID("Login_AadTile", "aadTile"),
		StaySignedIn:      driver.XPath("Login_StaySignedIn", "//input[@id='idSIButton9']"),
		LandingMarker:     driver.XPath("Login_CrmMainPage", "//*[contains(@id,'crmTopBar') or contains(@data-id,'topBar')]"),
		SubmitButton:      driver.ID("Login_SignIn", "idSIButton9"),
	}
}

// FederationForm describes an on-premises identity provider's sign-in form.
type FederationForm struct {
	Password driver.Locator
	Submit   driver.Locator
}

// DefaultFederationForm targets the stock AD FS forms sign-in page.
func DefaultFederationForm() FederationForm {
	return FederationForm{
		Password: driver.ID("ADFS_Password", "passwordInput"),
		Submit:   driver.ID("ADFS_Submit", "submitButton"),
	}
}
