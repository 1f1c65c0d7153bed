package locale

import (
	"golang.org/x/text/language"

	"github.com/africashands/platform/internal/model"
)

type text struct {
	message string
	action  string
}

// catalogs はポルトガル語以外の訳。ポルトガル語はmodelのエラー生成関数が持つ。
var catalogs = map[language.Tag]map[string]text{
	language.English: {
		model.ErrCodeUnauthorized:           {"You need to sign in.", "Sign in and try again."},
		model.ErrCodeForbidden:              {"You do not have permission to perform this action.", "Contact an administrator if you need access."},
		model.ErrCodeInvalidCredentials:     {"Incorrect email or password.", "Check your details or reset your password."},
		model.ErrCodeEmailAlreadyRegistered: {"This email is already registered.", "Sign in or use another email."},
		model.ErrCodeWeakPassword:           {"The password is too weak.", "Use at least letters and numbers."},
		model.ErrCodeInvalidResetToken:      {"The reset link is invalid or has expired.", "Request a new reset link."},
		model.ErrCodeValidationFailed:       {"The submitted data is invalid.", "Correct the indicated fields and try again."},
		model.ErrCodeUserNotFound:           {"User not found.", "Sign in again."},
		model.ErrCodeOpportunityNotFound:    {"Opportunity not found.", "Refresh the list of opportunities."},
		model.ErrCodeOpportunityClosed:      {"This opportunity no longer accepts applications.", "Look for other active opportunities."},
		model.ErrCodeAlreadyApplied:         {"You have already applied to this opportunity.", "Check your applications."},
		model.ErrCodeApplicationNotFound:    {"Application not found.", "Refresh the list of applications."},
		model.ErrCodeInvalidImage:           {"The uploaded file is not a valid image.", "Upload a PNG, JPEG, GIF or WebP image."},
		model.ErrCodeImageTooLarge:          {"The image exceeds the maximum allowed size.", "Reduce the image size and try again."},
		model.ErrCodeImageNotFound:          {"Image not found.", "Check the image address."},
		model.ErrCodeInvalidURL:             {"The address is invalid.", "Enter an address starting with http:// or https://."},
		model.ErrCodeSSRFBlocked:            {"Access to this address was blocked by the security policy.", "Provide the partner's public website address."},
		model.ErrCodeFeedNotDetected:        {"No RSS/Atom feed was found at this address.", "Provide the partner's feed address directly."},
		model.ErrCodeFetchFailed:            {"The address could not be retrieved.", "Check the address and try again later."},
		model.ErrCodeDuplicateSource:        {"This partner feed is already registered.", "Check the list of registered sources."},
		model.ErrCodeRateLimited:            {"Too many requests.", "Wait a moment and try again."},
		model.ErrCodeInternal:               {"An internal error occurred.", "Wait a moment and try again."},
	},
	language.French: {
		model.ErrCodeUnauthorized:           {"Vous devez vous connecter.", "Connectez-vous puis réessayez."},
		model.ErrCodeForbidden:              {"Vous n'avez pas l'autorisation d'effectuer cette action.", "Contactez un administrateur si vous avez besoin d'accès."},
		model.ErrCodeInvalidCredentials:     {"Email ou mot de passe incorrect.", "Vérifiez vos informations ou réinitialisez votre mot de passe."},
		model.ErrCodeEmailAlreadyRegistered: {"Cet email est déjà enregistré.", "Connectez-vous ou utilisez un autre email."},
		model.ErrCodeWeakPassword:           {"Le mot de passe est trop faible.", "Utilisez au moins des lettres et des chiffres."},
		model.ErrCodeInvalidResetToken:      {"Le lien de réinitialisation est invalide ou a expiré.", "Demandez un nouveau lien de réinitialisation."},
		model.ErrCodeValidationFailed:       {"Les données envoyées sont invalides.", "Corrigez les champs indiqués puis réessayez."},
		model.ErrCodeUserNotFound:           {"Utilisateur introuvable.", "Connectez-vous à nouveau."},
		model.ErrCodeOpportunityNotFound:    {"Opportunité introuvable.", "Actualisez la liste des opportunités."},
		model.ErrCodeOpportunityClosed:      {"Cette opportunité n'accepte plus de candidatures.", "Cherchez d'autres opportunités actives."},
		model.ErrCodeAlreadyApplied:         {"Vous avez déjà postulé à cette opportunité.", "Consultez vos candidatures."},
		model.ErrCodeApplicationNotFound:    {"Candidature introuvable.", "Actualisez la liste des candidatures."},
		model.ErrCodeInvalidImage:           {"Le fichier envoyé n'est pas une image valide.", "Envoyez une image PNG, JPEG, GIF ou WebP."},
		model.ErrCodeImageTooLarge:          {"L'image dépasse la taille maximale autorisée.", "Réduisez la taille de l'image puis réessayez."},
		model.ErrCodeImageNotFound:          {"Image introuvable.", "Vérifiez l'adresse de l'image."},
		model.ErrCodeInvalidURL:             {"L'adresse indiquée est invalide.", "Saisissez une adresse commençant par http:// ou https://."},
		model.ErrCodeSSRFBlocked:            {"L'accès à cette adresse a été bloqué par la politique de sécurité.", "Indiquez l'adresse publique du site du partenaire."},
		model.ErrCodeFeedNotDetected:        {"Aucun flux RSS/Atom n'a été trouvé à cette adresse.", "Indiquez directement l'adresse du flux du partenaire."},
		model.ErrCodeFetchFailed:            {"Impossible de récupérer l'adresse indiquée.", "Vérifiez l'adresse et réessayez plus tard."},
		model.ErrCodeDuplicateSource:        {"Ce flux de partenaire est déjà enregistré.", "Consultez la liste des sources enregistrées."},
		model.ErrCodeRateLimited:            {"Trop de requêtes.", "Patientez un instant puis réessayez."},
		model.ErrCodeInternal:               {"Une erreur interne s'est produite.", "Patientez un instant puis réessayez."},
	},
}
